package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/lesion-check/internal/predictor"
)

// MalignancyThreshold is the score above which a lesion needs attention.
const MalignancyThreshold = 0.3

// Verdict is the headline of a result.
type Verdict string

const (
	VerdictAttentionRequired Verdict = "attention_required"
	VerdictLikelyBenign      Verdict = "likely_benign"
)

// Row is one prediction ready for display.
type Row struct {
	Label        string  `json:"label"`
	DisplayLabel string  `json:"display_label"`
	Probability  float64 `json:"probability"`
	Percent      string  `json:"percent"`
	Top          bool    `json:"top"`
}

// Summary is what the result view renders.
type Summary struct {
	Verdict          Verdict `json:"verdict"`
	Headline         string  `json:"headline"`
	Advice           string  `json:"advice"`
	MalignantPercent string  `json:"malignant_percent"`
	Rows             []Row   `json:"predictions"`
	Explanation      string  `json:"explanation"`
	VisualOverlay    string  `json:"visual_overlay"`
	ModelVersion     string  `json:"model_version"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// Summarize prepares r for presentation. The first prediction is treated as
// the top one.
func Summarize(r *predictor.Result) Summary {
	s := Summary{
		Verdict:          VerdictLikelyBenign,
		Headline:         "Likely Benign",
		Advice:           "The analysis suggests this lesion is likely benign. However, regular monitoring is recommended.",
		MalignantPercent: percent(r.MalignancyScore),
		Explanation:      r.Explanation,
		VisualOverlay:    r.VisualOverlay,
		ModelVersion:     r.ModelVersion,
		ProcessingTimeMs: r.ProcessingTimeMs,
	}
	if r.MalignancyScore > MalignancyThreshold {
		s.Verdict = VerdictAttentionRequired
		s.Headline = "Attention Required"
		s.Advice = "The analysis suggests this lesion may require professional evaluation. Please consult a dermatologist."
	}
	for i, p := range r.Predictions {
		s.Rows = append(s.Rows, Row{
			Label:        p.Label,
			DisplayLabel: DisplayLabel(p.Label),
			Probability:  p.Probability,
			Percent:      percent(p.Probability),
			Top:          i == 0,
		})
	}
	return s
}

// DisplayLabel turns "basal_cell_carcinoma" into "Basal Cell Carcinoma".
func DisplayLabel(label string) string {
	words := strings.Split(label, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
