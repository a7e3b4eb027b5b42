package features

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// The artifact convention, line by line. Disabled markers must be tried
// before plain comments; both are /* ... */ lines.
var (
	ifndefPattern   = regexp.MustCompile(`^#ifndef ([A-Za-z_][A-Za-z0-9_]*)$`)
	endifPattern    = regexp.MustCompile(`^#endif$`)
	bareDefine      = regexp.MustCompile(`^#define ([A-Za-z_][A-Za-z0-9_]*)$`)
	numericDefine   = regexp.MustCompile(`^#define ([A-Za-z_][A-Za-z0-9_]*) 1$`)
	stringDefine    = regexp.MustCompile(`^#define ([A-Za-z_][A-Za-z0-9_]*) "([^"]*)"$`)
	disabledPattern = regexp.MustCompile(`^/\* #undef ([A-Za-z_][A-Za-z0-9_]*) \*/$`)
	commentPattern  = regexp.MustCompile(`^/\* (.*) \*/$`)
)

// Parse reads an artifact back into a Document. It knows nothing about
// any registry: it accepts exactly the line forms the encoder produces,
// in any order, and fails only on a line matching none of them.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{}
	scanner := bufio.NewScanner(r)

	number := 0
	for scanner.Scan() {
		number++
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" {
			continue
		}

		switch {
		case disabledPattern.MatchString(line):
			m := disabledPattern.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindDisabled, Symbol: m[1]})

		case commentPattern.MatchString(line):
			m := commentPattern.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindComment, Text: m[1]})

		case numericDefine.MatchString(line):
			m := numericDefine.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindDefine, Symbol: m[1], Value: "1"})

		case stringDefine.MatchString(line):
			m := stringDefine.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindString, Symbol: m[1], Value: m[2]})

		case bareDefine.MatchString(line):
			m := bareDefine.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindGuardArm, Symbol: m[1]})
			if doc.GuardDefine == "" {
				doc.GuardDefine = m[1]
			}

		case ifndefPattern.MatchString(line):
			m := ifndefPattern.FindStringSubmatch(line)
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindGuardOpen, Symbol: m[1]})
			if doc.Guard == "" {
				doc.Guard = m[1]
			}

		case endifPattern.MatchString(line):
			doc.Lines = append(doc.Lines, Line{Number: number, Kind: KindGuardClose})
			doc.Terminated = true

		default:
			return nil, &ParseError{Line: number, Text: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return doc, nil
}
