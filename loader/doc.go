// Package loader reads the encoded bytes of pyramid bricks and decodes them.
//
// A brick is addressed by a [File] from a level's file table plus the byte
// range stored in its [brick.Locator]. Files are either local paths (a
// single-brick file or a packed stream of many bricks) or HTTP URLs fetched
// with a Range request. Three codecs are supported: uncompressed raw,
// single-channel JPEG laid out as nz images of nx×ny stacked vertically,
// and grayscale TIFF in the same layout. [CodecAuto] sniffs the payload.
//
// Local reads are synchronous. Remote reads go through a bounded set of
// background transfers: the first request for a brick starts a transfer and
// returns [ErrPending]; the host calls [Loader.Poll] once per frame to learn
// how many transfers finished, and the next request for the brick returns
// the decoded bytes. Fetched payloads can be persisted in a [CacheDir]
// keyed by dataset and level.
package loader
