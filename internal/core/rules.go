package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSubjectIdentityRule())
	engine.Register(NewTrialIntegrityRule())
	engine.Register(NewWeightPlausibilityRule())
	engine.Register(NewSurgeryCardinalityRule())
	return engine
}
