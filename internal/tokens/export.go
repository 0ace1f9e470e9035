package tokens

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

const (
	CSVFilename = "join_tokens.csv"
	QRSize      = 256
)

// WriteCSV writes a join_url header followed by one URL per row.
func WriteCSV(w io.Writer, invites []Invite) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"join_url"}); err != nil {
		return err
	}
	for _, inv := range invites {
		if err := cw.Write([]string{inv.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// QRCode renders a PNG for a join link.
func QRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = QRSize
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
