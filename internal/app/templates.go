package app

import (
	"github.com/ayusman/gestureflow/internal/classifier"
	"github.com/ayusman/gestureflow/internal/store"
)

// LoadTemplates publishes every trained custom gesture in the store to tc
// and returns how many were loaded. Gestures without a template are
// skipped.
func LoadTemplates(st *store.Store, tc *classifier.TemplateClassifier) (int, error) {
	gestures, err := st.Gestures().List()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, g := range gestures {
		if g.Template == nil {
			continue
		}
		g.Template.ID = g.ID
		g.Template.Label = g.Name
		tc.Set(g.Template)
		n++
	}
	return n, nil
}
