package classify

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		filename  string
		want      Strategy
	}{
		{"csv media type", "text/csv", "movimientos.csv", StrategyTabular},
		{"excel media type", "application/vnd.ms-excel", "export.bin", StrategyTabular},
		{"openxml sheet", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "f", StrategyTabular},
		{"csv extension only", "application/octet-stream", "statement.CSV", StrategyTabular},
		{"tsv extension", "", "dump.tsv", StrategyTabular},
		{"xls extension", "", "legacy.xls", StrategyTabular},
		{"pdf media type", "application/pdf", "statement.dat", StrategyNativeDocument},
		{"image media type", "image/jpeg", "receipt", StrategyNativeDocument},
		{"pdf extension only", "application/octet-stream", "extracto.pdf", StrategyNativeDocument},
		{"png extension", "", "foto.PNG", StrategyNativeDocument},
		{"plain text", "text/plain", "notas.txt", StrategyPlainText},
		{"unknown everything", "application/octet-stream", "blob", StrategyPlainText},
		{"empty input", "", "", StrategyPlainText},
		{"media type wins over extension", "text/csv", "weird.pdf", StrategyTabular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.mediaType, tt.filename)
			if got != tt.want {
				t.Errorf("Detect(%q, %q) = %q, want %q", tt.mediaType, tt.filename, got, tt.want)
			}
		})
	}
}

// Every input must classify to exactly one of the three strategies.
func TestDetectIsTotal(t *testing.T) {
	inputs := [][2]string{
		{"", ""},
		{"video/mp4", "clip.mp4"},
		{"application/zip", "docs.zip"},
		{"garbage", "no-extension"},
	}
	for _, in := range inputs {
		got := Detect(in[0], in[1])
		switch got {
		case StrategyTabular, StrategyNativeDocument, StrategyPlainText:
		default:
			t.Errorf("Detect(%q, %q) returned unknown strategy %q", in[0], in[1], got)
		}
	}
}
