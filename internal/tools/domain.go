package tools

import "fmt"

// logicalOperators are the prefix-notation connectives a domain element may
// be instead of a condition tuple (spec §4.8/glossary "Prefix notation").
var logicalOperators = map[string]int{
	"&": 2,
	"|": 2,
	"!": 1,
}

// domainOperators is the fixed set of condition operators Odoo's ORM
// accepts in a domain tuple (spec §4.8 "operators in the tuple belong to a
// fixed set").
var domainOperators = map[string]bool{
	"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"like": true, "ilike": true, "not like": true, "not ilike": true,
	"=like": true, "=ilike": true,
	"in": true, "not in": true,
	"child_of": true, "parent_of": true,
}

// listOperators require their operand to be a list (spec §4.8 "in/not in
// require list values").
var listOperators = map[string]bool{"in": true, "not in": true}

// ValidateDomain checks that domain is well-formed Polish-prefix notation:
// every element is either a logical operator (&, |, !) or a 3-element
// condition tuple, operators come from the fixed set, in/not in carry a
// list operand, and the whole expression consumes exactly len(domain)
// elements with no leftover or missing operands.
func ValidateDomain(domain []interface{}) error {
	if len(domain) == 0 {
		return nil
	}
	consumed, err := validateDomainFrom(domain, 0)
	if err != nil {
		return err
	}
	if consumed != len(domain) {
		return fmt.Errorf("domain: %d trailing element(s) after a well-formed expression", len(domain)-consumed)
	}
	return nil
}

// validateDomainFrom recursively consumes one well-formed sub-expression
// starting at idx and returns the index just past it.
func validateDomainFrom(domain []interface{}, idx int) (int, error) {
	if idx >= len(domain) {
		return idx, fmt.Errorf("domain: expected an operator or condition tuple, got end of expression")
	}

	if op, ok := domain[idx].(string); ok {
		if arity, isLogical := logicalOperators[op]; isLogical {
			next := idx + 1
			for i := 0; i < arity; i++ {
				var err error
				next, err = validateDomainFrom(domain, next)
				if err != nil {
					return 0, err
				}
			}
			return next, nil
		}
	}

	return idx + 1, validateTuple(domain[idx])
}

func validateTuple(elem interface{}) error {
	tuple, ok := elem.([]interface{})
	if !ok || len(tuple) != 3 {
		return fmt.Errorf("domain: condition %v must be a 3-element [field, operator, value] tuple", elem)
	}
	field, ok := tuple[0].(string)
	if !ok || field == "" {
		return fmt.Errorf("domain: condition field must be a non-empty string")
	}
	op, ok := tuple[1].(string)
	if !ok || !domainOperators[op] {
		return fmt.Errorf("domain: %q is not a recognized operator", tuple[1])
	}
	if listOperators[op] {
		if _, ok := tuple[2].([]interface{}); !ok {
			return fmt.Errorf("domain: operator %q on field %q requires a list value", op, field)
		}
	}
	return nil
}
