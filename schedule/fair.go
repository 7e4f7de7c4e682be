package schedule

// Distribute splits quota bricks among channels with counts[i] candidate
// bricks each. The selected channel is served first with a share of
// ceil(quota/n); the other channels then receive up to the same share in
// order of index distance from the selected one, nearer below before
// nearer above. Quota left over goes back to the selected channel and then
// outward again.
//
// The result never exceeds counts and sums to min(quota, sum(counts)).
func Distribute(counts []int, selected, quota int) []int {
	n := len(counts)
	alloc := make([]int, n)
	if n == 0 || quota <= 0 {
		return alloc
	}
	total := 0
	for _, c := range counts {
		total += max(0, c)
	}
	if total <= quota {
		for i, c := range counts {
			alloc[i] = max(0, c)
		}
		return alloc
	}
	selected = min(max(selected, 0), n-1)
	share := (quota + n - 1) / n
	rem := quota

	give := func(i, limit int) {
		a := min(max(0, counts[i])-alloc[i], limit, rem)
		if a > 0 {
			alloc[i] += a
			rem -= a
		}
	}

	order := outward(n, selected)
	give(selected, share)
	for _, i := range order {
		give(i, share)
	}
	give(selected, rem)
	for _, i := range order {
		give(i, rem)
	}
	return alloc
}

// outward lists the indices other than sel by distance from it:
// sel-1, sel+1, sel-2, sel+2, ...
func outward(n, sel int) []int {
	idx := make([]int, 0, n-1)
	for d := 1; len(idx) < n-1; d++ {
		if i := sel - d; i >= 0 {
			idx = append(idx, i)
		}
		if i := sel + d; i < n {
			idx = append(idx, i)
		}
	}
	return idx
}
