package repricer

// Classify returns the rule whose bucket contains the given age. rules must
// be sorted ascending by DaysFrom with no repeats, which RuleConfig.Validate
// guarantees. Ages beyond the last boundary fall into the last bucket.
//
// The boolean is false when the age is unknown or there are no rules; the
// caller must then leave the listing untouched.
func Classify(age Age, rules []RepriceRule) (RepriceRule, bool) {
	days, known := age.Days()
	if !known || len(rules) == 0 {
		return RepriceRule{}, false
	}
	for _, r := range rules {
		if r.DaysFrom >= days {
			return r, true
		}
	}
	return rules[len(rules)-1], true
}
