// Package predicate provides the filter language for fetch specifications.
//
// A Predicate is a small sealed tree:
//
//	Equals   attr = value
//	Compare  attr <op> value        (<, <=, >, >=, !=)
//	In       attr IN (v1, v2, ...)
//	And      all children true      (empty = true)
//	Or       any child true         (empty = false)
//	Not      child false
//	Expr     expr-lang boolean expression over attributes
//
// Every predicate can be evaluated in memory with Match. Everything except Expr
// (and equality against list values) can also be pushed down to the store as
// SQL; see package querysql. Validate reports which parts of a tree stay in
// memory.
//
// SEALED INTERFACE:
//
// Only types in this package implement Predicate, so backends can use
// exhaustive type switches:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	...
//	}
//
// A nil Predicate matches everything.
package predicate
