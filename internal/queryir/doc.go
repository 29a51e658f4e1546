// Package queryir defines the abstract entity list query.
//
// A ListQuery answers "list entities of kind K ordered by position,
// optionally filtered". Predicates form a sealed set, so backend compilers
// (see querysql) can switch over them exhaustively. Filter fields come from
// a fixed whitelist; values are always parameters, never SQL text.
//
// Example:
//
//	ListQuery{
//	  Kind:  ir.KindSproutContractCreated,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: FieldParent, Value: "0x…0aaa"},
//	    After{Position: ir.Position{Block: 10}},
//	  }},
//	  Order: Ascending,
//	  Limit: 50,
//	}
package queryir
