// Package core wires the canonical schema, rules engine, persistence drivers
// and observability ports into the service facade the import/export engine
// and collaborators operate through.
package core

import "mousedb/pkg/domain"

// Aliases keep call sites concise while exposing domain types from the core
// package.
type (
	// Cohort is an alias of domain.Cohort.
	Cohort = domain.Cohort
	// Subject is an alias of domain.Subject.
	Subject = domain.Subject
	// WeightRecord is an alias of domain.WeightRecord.
	WeightRecord = domain.WeightRecord
	// PelletSession is an alias of domain.PelletSession.
	PelletSession = domain.PelletSession
	// PelletTrial is an alias of domain.PelletTrial.
	PelletTrial = domain.PelletTrial
	// SurgeryRecord is an alias of domain.SurgeryRecord.
	SurgeryRecord = domain.SurgeryRecord
	// Change is an alias of domain.Change.
	Change = domain.Change
	// Result is an alias of domain.Result.
	Result = domain.Result
	// Violation is an alias of domain.Violation.
	Violation = domain.Violation
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Rule is an alias of domain.Rule.
	Rule = domain.Rule
	// RuleView is an alias of domain.RuleView.
	RuleView = domain.RuleView
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore is an alias of domain.PersistentStore.
	PersistentStore = domain.PersistentStore
	// RuleViolationError is an alias of domain.RuleViolationError.
	RuleViolationError = domain.RuleViolationError
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
