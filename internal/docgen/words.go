package docgen

import (
	"fmt"
	"math"
	"strings"
)

var (
	wordOnes  = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}
	wordTens  = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
	wordTeens = []string{"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}
)

// AmountInWords renders the rupee part of an amount as English words for
// the invoice footer. The sign and paise are dropped; amounts of a million
// or more fall back to digits.
func AmountInWords(amount float64) string {
	n := int(math.Floor(math.Abs(amount)))
	if n == 0 {
		return "Zero Rupees only"
	}
	return strings.TrimSpace(numberWords(n) + " Rupees only")
}

func numberWords(n int) string {
	switch {
	case n < 10:
		return wordOnes[n]
	case n < 20:
		return wordTeens[n-10]
	case n < 100:
		s := wordTens[n/10]
		if n%10 != 0 {
			s += " " + wordOnes[n%10]
		}
		return s
	case n < 1000:
		s := wordOnes[n/100] + " Hundred"
		if n%100 != 0 {
			s += " and " + numberWords(n%100)
		}
		return s
	case n < 1000000:
		s := numberWords(n/1000) + " Thousand"
		if n%1000 != 0 {
			s += " " + numberWords(n%1000)
		}
		return s
	default:
		return fmt.Sprintf("%d", n)
	}
}
