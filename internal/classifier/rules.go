package classifier

import (
	"math"

	"github.com/ayusman/gestureflow/internal/detector"
)

// Predefined gesture labels recognised by RuleClassifier.
const (
	OpenPalm  = "open_palm"
	ThumbsUp  = "thumbs_up"
	Fist      = "fist"
	PeaceSign = "peace_sign"
	Pointing  = "pointing"
)

// RuleConfidence is reported for every rule match.
const RuleConfidence = 0.95

// Rule is a geometric predicate over image-space landmarks.
type Rule struct {
	Label string
	Name  string
	Match func(h *detector.HandLandmarks) bool
}

// PredefinedRules returns the built-in gestures in evaluation order. When
// several match, the first one wins.
func PredefinedRules() []Rule {
	return []Rule{
		{Label: OpenPalm, Name: "Open Palm", Match: isOpenPalm},
		{Label: ThumbsUp, Name: "Thumbs Up", Match: isThumbsUp},
		{Label: Fist, Name: "Fist", Match: isFist},
		{Label: PeaceSign, Name: "Peace Sign", Match: isPeaceSign},
		{Label: Pointing, Name: "Pointing", Match: isPointing},
	}
}

// RuleClassifier recognises the predefined gestures with fixed geometric rules.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier creates a classifier over rules. With no rules the
// predefined set is used.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	if len(rules) == 0 {
		rules = PredefinedRules()
	}
	return &RuleClassifier{rules: rules}
}

// Labels returns the labels in evaluation order.
func (c *RuleClassifier) Labels() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Label
	}
	return out
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(vector []float64) (Result, error) {
	h, err := landmarks(vector)
	if err != nil {
		return None, err
	}
	for _, r := range c.rules {
		if r.Match(&h) {
			return Result{Label: r.Label, Confidence: RuleConfidence, Source: "rules"}, nil
		}
	}
	return None, nil
}

func tipAbovePIP(h *detector.HandLandmarks, tip int) bool {
	return h.Points[tip].Y < h.Points[tip-2].Y
}

func tipBelowPIP(h *detector.HandLandmarks, tip int) bool {
	return h.Points[tip].Y > h.Points[tip-2].Y
}

func isOpenPalm(h *detector.HandLandmarks) bool {
	for _, tip := range []int{detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip} {
		if !tipAbovePIP(h, tip) {
			return false
		}
	}
	// Thumb away from the palm centre.
	return math.Abs(h.Points[detector.ThumbTip].X-h.Points[detector.MiddleMCP].X) > 0.08
}

func isFist(h *detector.HandLandmarks) bool {
	for _, tip := range []int{detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip} {
		if !tipBelowPIP(h, tip) {
			return false
		}
	}
	return true
}

func isPeaceSign(h *detector.HandLandmarks) bool {
	return tipAbovePIP(h, detector.IndexTip) &&
		tipAbovePIP(h, detector.MiddleTip) &&
		tipBelowPIP(h, detector.RingTip) &&
		tipBelowPIP(h, detector.PinkyTip)
}

func isPointing(h *detector.HandLandmarks) bool {
	return tipAbovePIP(h, detector.IndexTip) &&
		tipBelowPIP(h, detector.MiddleTip) &&
		tipBelowPIP(h, detector.RingTip) &&
		tipBelowPIP(h, detector.PinkyTip)
}

func isThumbsUp(h *detector.HandLandmarks) bool {
	wrist := h.Points[detector.Wrist]
	thumbTip := h.Points[detector.ThumbTip]
	thumbMCP := h.Points[detector.ThumbMCP]

	thumbUp := thumbTip.Y < wrist.Y-0.03
	thumbExtended := math.Abs(thumbTip.Y-thumbMCP.Y) > 0.05

	// At least three of the four fingers folded.
	folded := 0
	minTipY := math.Inf(1)
	var sumTipX float64
	for _, tip := range []int{detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip} {
		if tipBelowPIP(h, tip) {
			folded++
		}
		minTipY = math.Min(minTipY, h.Points[tip].Y)
		sumTipX += h.Points[tip].X
	}

	thumbHighest := thumbTip.Y <= minTipY+0.02
	thumbSeparated := math.Abs(thumbTip.X-sumTipX/4) > 0.04

	return thumbUp && thumbExtended && folded >= 3 && thumbHighest && thumbSeparated
}
