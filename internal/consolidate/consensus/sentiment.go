package consensus

import (
	"strings"

	"github.com/inquora/distill/internal/consolidate/similarity"
	"github.com/inquora/distill/internal/model"
)

// Interview corpora are bilingual in practice; the lexicon covers the
// English and Spanish markers the extraction layer passes through verbatim.
var negativeMarkers = []string{
	"fail", "fails", "failing", "crash", "crashes", "down", "outage",
	"slow", "late", "delay", "delays", "manual", "error", "errors",
	"problem", "problems", "broken", "falla", "fallas", "se cae",
	"lento", "lenta", "tarde", "problema", "problemas", "no funciona",
	"causes problems", "causa problemas",
}

var positiveMarkers = []string{
	"helps", "works well", "reliable", "fast", "great", "smooth",
	"ayuda", "funciona bien", "confiable", "rapido", "rapida", "excelente",
}

// sentimentOf classifies one mention. The extractor's explicit polarity
// wins; the lexicon only fills gaps in free text.
func sentimentOf(e *model.RawEntity) model.Sentiment {
	if s := e.Sentiment(); s != "" {
		return s
	}
	text := similarity.Normalize(e.Text())

	neg, pos := 0, 0
	for _, marker := range negativeMarkers {
		if strings.Contains(text, marker) {
			neg++
		}
	}
	for _, marker := range positiveMarkers {
		if strings.Contains(text, marker) {
			pos++
		}
	}
	switch {
	case neg > pos:
		return model.SentimentNegative
	case pos > neg:
		return model.SentimentPositive
	default:
		return model.SentimentNeutral
	}
}
