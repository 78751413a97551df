package index

import "github.com/RoaringBitmap/roaring/v2"

type masked struct {
	Reader
	live *roaring.Bitmap
}

// Mask hides deleted documents of r. Closing the result leaves r open.
func Mask(r Reader, deleted *roaring.Bitmap) Reader {
	if deleted == nil || deleted.IsEmpty() {
		return &masked{Reader: r, live: r.Live()}
	}
	live := r.Live().Clone()
	live.AndNot(deleted)
	return &masked{Reader: r, live: live}
}

func (m *masked) Live() *roaring.Bitmap { return m.live }

func (m *masked) Close() error { return nil }
