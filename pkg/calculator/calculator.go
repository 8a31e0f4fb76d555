// Package calculator provides small arithmetic and string helpers used by the
// demo command.
package calculator

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

var (
	// ErrDivisionByZero is returned by Divide when the divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNegativeFactorial is returned by Factorial for negative input.
	ErrNegativeFactorial = errors.New("factorial is not defined for negative numbers")
	// ErrFactorialOverflow is returned by Factorial when the result exceeds int64.
	ErrFactorialOverflow = errors.New("factorial overflows int64")
	// ErrNegativeSquareRoot is returned by SquareRoot for negative input.
	ErrNegativeSquareRoot = errors.New("square root is not defined for negative numbers")
)

// MaxFactorial is the largest n whose factorial fits in an int64.
const MaxFactorial = 20

// Calculator is stateless except for a stored value. The zero value is ready
// to use. It is not safe for concurrent use.
type Calculator struct {
	value float64
}

// New returns a Calculator with a stored value of 0.
func New() *Calculator {
	return &Calculator{}
}

// Add returns a+b. Integer overflow wraps.
func (c *Calculator) Add(a, b int) int { return a + b }

// Subtract returns a-b.
func (c *Calculator) Subtract(a, b int) int { return a - b }

// Multiply returns a*b.
func (c *Calculator) Multiply(a, b int) int { return a * b }

// Divide returns a/b.
func (c *Calculator) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

func (c *Calculator) IsPositive(n int) bool { return n > 0 }

func (c *Calculator) IsEven(n int) bool { return n%2 == 0 }

func (c *Calculator) IsEmpty(s string) bool { return s == "" }

func (c *Calculator) Concatenate(a, b string) string { return a + b }

// ToUpperCase maps every Unicode letter to upper case, not only ASCII:
// "école" becomes "ÉCOLE".
func (c *Calculator) ToUpperCase(s string) string { return strings.ToUpper(s) }

// Length returns the number of runes in s, not bytes: Length("héllo") is 5.
func (c *Calculator) Length(s string) int { return utf8.RuneCountInString(s) }

// SetValue stores v.
func (c *Calculator) SetValue(v float64) { c.value = v }

// Value returns the stored value.
func (c *Calculator) Value() float64 { return c.value }

// Factorial returns n! for 0 <= n <= MaxFactorial.
func (c *Calculator) Factorial(n int) (int64, error) {
	if n < 0 {
		return 0, ErrNegativeFactorial
	}
	if n > MaxFactorial {
		return 0, ErrFactorialOverflow
	}
	result := int64(1)
	for i := int64(2); i <= int64(n); i++ {
		result *= i
	}
	return result, nil
}

// SquareRoot returns the square root of x.
func (c *Calculator) SquareRoot(x float64) (float64, error) {
	if x < 0 {
		return 0, ErrNegativeSquareRoot
	}
	return math.Sqrt(x), nil
}
