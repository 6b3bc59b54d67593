package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	kanjiDigits = map[rune]int64{
		'零': 0, '〇': 0, '一': 1, '二': 2, '三': 3, '四': 4,
		'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
	}
	kanjiSmall = map[rune]int64{'十': 10, '百': 100, '千': 1000}
	kanjiLarge = map[rune]int64{'万': 1e4, '億': 1e8, '兆': 1e12}

	kanjiNumber = regexp.MustCompile(`[零〇一二三四五六七八九十百千万億兆]+`)
)

// KanjiToInt parses a kanji numeral such as 三億五千万 or 二〇二四. ok is false
// when s contains anything other than numeral characters.
func KanjiToInt(s string) (n int64, ok bool) {
	if s == "" {
		return 0, false
	}
	var total, section, digit int64
	hasDigit := false
	positional := true
	for _, r := range s {
		if _, isUnit := kanjiSmall[r]; isUnit {
			positional = false
		}
		if _, isUnit := kanjiLarge[r]; isUnit {
			positional = false
		}
	}
	if positional {
		// 二〇二四 style: plain digit sequence.
		var v int64
		for _, r := range s {
			d, isDigit := kanjiDigits[r]
			if !isDigit {
				return 0, false
			}
			v = v*10 + d
		}
		return v, true
	}
	for _, r := range s {
		if d, isDigit := kanjiDigits[r]; isDigit {
			digit = digit*10 + d
			hasDigit = true
			continue
		}
		if u, isSmall := kanjiSmall[r]; isSmall {
			if !hasDigit {
				digit = 1
			}
			section += digit * u
			digit, hasDigit = 0, false
			continue
		}
		if u, isLarge := kanjiLarge[r]; isLarge {
			section += digit
			if section == 0 {
				section = 1
			}
			total += section * u
			section, digit, hasDigit = 0, 0, false
			continue
		}
		return 0, false
	}
	return total + section + digit, true
}

// ReplaceKanjiNumbers rewrites kanji numerals in s as arabic digits. Runs
// made only of unit characters, such as the 千 in 千代田, are left alone.
func ReplaceKanjiNumbers(s string) string {
	return kanjiNumber.ReplaceAllStringFunc(s, func(m string) string {
		if !strings.ContainsAny(m, "零〇一二三四五六七八九") {
			return m
		}
		n, ok := KanjiToInt(m)
		if !ok {
			return m
		}
		return strconv.FormatInt(n, 10)
	})
}
