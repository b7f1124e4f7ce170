package models

// DownloadResult is a subtitle payload accepted from one of the download
// mirrors. Immutable after creation; Size always equals len(Buffer).
type DownloadResult struct {
	Buffer   []byte `json:"-"`
	Ext      string `json:"ext"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// Clone returns a deep copy, including the payload bytes.
func (d *DownloadResult) Clone() *DownloadResult {
	if d == nil {
		return nil
	}
	out := *d
	out.Buffer = make([]byte, len(d.Buffer))
	copy(out.Buffer, d.Buffer)
	return &out
}
