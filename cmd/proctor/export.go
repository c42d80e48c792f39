package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/klauspost/compress/zstd"
)

// writeExport streams the export as zstd-compressed, indented JSON.
func writeExport(w io.Writer, export *models.DataExport) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	je := json.NewEncoder(enc)
	je.SetIndent("", "  ")
	if err := je.Encode(export); err != nil {
		enc.Close()
		return fmt.Errorf("encode export: %w", err)
	}

	return enc.Close()
}
