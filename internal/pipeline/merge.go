package pipeline

import (
	"github.com/sells-group/enrich-cli/internal/model"
)

// Merge copies extracted values into dst. A field that already has a value
// is kept unless regenerate is set; provenance follows the value. It returns
// the fields that were written.
func Merge(dst *model.CompanyRecord, extracted map[model.Field]model.ExtractedField, regenerate bool) []model.Field {
	var adopted []model.Field
	for _, f := range model.AllFields() {
		ef, ok := extracted[f]
		if !ok || ef.Value == "" {
			continue
		}
		if dst.Get(f) != "" && !regenerate {
			continue
		}
		dst.Set(f, ef.Value)
		if dst.Provenance == nil {
			dst.Provenance = map[model.Field]model.FieldProvenance{}
		}
		dst.Provenance[f] = model.FieldProvenance{
			SourceURL:  ef.SourceURL,
			Method:     ef.Method,
			Confidence: ef.Confidence,
			Evidence:   ef.Evidence,
		}
		adopted = append(adopted, f)
	}
	return adopted
}

// Wanted lists the fields extraction should resolve for rec.
func Wanted(rec *model.CompanyRecord, regenerate bool) []model.Field {
	if regenerate {
		return model.AllFields()
	}
	var out []model.Field
	for _, f := range model.AllFields() {
		if rec.Get(f) == "" {
			out = append(out, f)
		}
	}
	return out
}
