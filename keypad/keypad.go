/*
Package keypad implements the amount-entry accumulator behind the
numeric keypad.

PURPOSE:
  Users type an amount as a small sum of signed terms, e.g.
  "12.50+3-0.75". This package holds that expression as structured
  state, enforces entry rules keystroke by keystroke, and evaluates the
  total through the same cent arithmetic the ledger uses.

ENTRY RULES:
  - A term holds at most one decimal point and at most two fractional
    digits; further digits are ignored.
  - A term that is a lone "0" accepts no more digits until a decimal
    point is typed.
  - "+" or "-" on a term with digits starts a new term; on an empty
    term it just replaces the pending sign.
  - Delete removes the last character, then the pending sign, then the
    empty term itself.

USAGE:
  k := keypad.New()
  for _, key := range []string{"3", "0", "+", "2", "0"} {
      k.Press(key)
  }
  total := k.Total() // 50.00

SEE ALSO:
  - money: Operate, which Total folds terms through
*/
package keypad

import (
	"strings"

	"github.com/tallybook/bookkeeper/money"
)

// =============================================================================
// TERM - One signed number in the expression
// =============================================================================

type sign byte

const (
	signNone sign = iota
	signPlus
	signMinus
)

type term struct {
	sign    sign
	text    []byte // digits and at most one '.'
	decimal bool
}

func (t *term) empty() bool { return len(t.text) == 0 }

// fractionFull reports whether the term already carries two digits
// after its decimal point.
func (t *term) fractionFull() bool {
	if !t.decimal {
		return false
	}
	n := len(t.text)
	return n >= 3 && t.text[n-3] == '.'
}

// loneZero reports whether the term is exactly "0" with no decimal.
func (t *term) loneZero() bool {
	return !t.decimal && len(t.text) == 1 && t.text[0] == '0'
}

func (t *term) value() money.Amount {
	s := strings.TrimSuffix(string(t.text), ".")
	if s == "" {
		return money.Zero()
	}
	a, err := money.Parse(s)
	if err != nil {
		return money.Zero()
	}
	if t.sign == signMinus {
		return a.Neg()
	}
	return a
}

func (t *term) render() string {
	switch t.sign {
	case signPlus:
		return "+" + string(t.text)
	case signMinus:
		return "-" + string(t.text)
	default:
		return string(t.text)
	}
}

// =============================================================================
// KEYPAD - Accumulator state machine
// =============================================================================

// Keypad accumulates keystrokes into a signed-term expression.
// The zero value is an empty expression ready for input.
type Keypad struct {
	terms []term
}

func New() *Keypad { return &Keypad{} }

// Press dispatches one key. Recognized keys are "0".."9", ".", "+",
// "-", and "del". It returns false when the key was recognized but
// rejected by an entry rule, true otherwise.
func (k *Keypad) Press(key string) bool {
	switch {
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return k.pressDigit(key[0])
	case key == ".":
		return k.pressDecimal()
	case key == "+" || key == "-":
		return k.pressOperator(key[0])
	case key == "del":
		k.pressDelete()
		return true
	default:
		return false
	}
}

func (k *Keypad) pressDigit(d byte) bool {
	if len(k.terms) == 0 {
		k.terms = append(k.terms, term{text: []byte{d}})
		return true
	}
	last := &k.terms[len(k.terms)-1]
	if last.fractionFull() || last.loneZero() {
		return false
	}
	last.text = append(last.text, d)
	return true
}

func (k *Keypad) pressDecimal() bool {
	if len(k.terms) == 0 {
		k.terms = append(k.terms, term{text: []byte("0."), decimal: true})
		return true
	}
	last := &k.terms[len(k.terms)-1]
	if last.decimal {
		return false
	}
	if last.empty() {
		last.text = append(last.text, '0')
	}
	last.text = append(last.text, '.')
	last.decimal = true
	return true
}

func (k *Keypad) pressOperator(op byte) bool {
	s := signPlus
	if op == '-' {
		s = signMinus
	}
	if len(k.terms) == 0 {
		k.terms = append(k.terms, term{sign: s})
		return true
	}
	last := &k.terms[len(k.terms)-1]
	if last.empty() {
		last.sign = s
		return true
	}
	k.terms = append(k.terms, term{sign: s})
	return true
}

// pressDelete removes, in order of presence, the last character of the
// current term, then its pending sign, then the term itself.
func (k *Keypad) pressDelete() {
	if len(k.terms) == 0 {
		return
	}
	last := &k.terms[len(k.terms)-1]
	if last.empty() {
		if last.sign != signNone {
			last.sign = signNone
			return
		}
		k.terms = k.terms[:len(k.terms)-1]
		return
	}
	dropped := last.text[len(last.text)-1]
	last.text = last.text[:len(last.text)-1]
	if dropped == '.' {
		last.decimal = false
	}
}

// Clear resets the expression.
func (k *Keypad) Clear() { k.terms = nil }

// Empty reports whether no input has been entered.
func (k *Keypad) Empty() bool { return len(k.terms) == 0 }

// Total evaluates the expression by folding every term through cent
// addition, so the result matches ledger arithmetic exactly.
func (k *Keypad) Total() money.Amount {
	total := money.Zero()
	for i := range k.terms {
		total = money.Operate(total, k.terms[i].value(), money.AddOp)
	}
	return total
}

// Expression renders the current input for display, e.g. "12.50+3-0.75".
func (k *Keypad) Expression() string {
	var b strings.Builder
	for i := range k.terms {
		b.WriteString(k.terms[i].render())
	}
	return b.String()
}
