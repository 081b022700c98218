package sentiment

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyInput is returned by methods that cannot score empty text
var ErrEmptyInput = errors.New("empty input")

// Input is the text handed to every scoring method
type Input struct {
	Cleaned string
	Text    string
	Tokens  []string
}

// MethodScore is one method's output. Value lies in [-1, 1].
type MethodScore struct {
	Value        float64
	Subjectivity float64
	Hits         int
}

// Method is one interchangeable sentiment strategy
type Method interface {
	Name() string
	Score(in Input) (MethodScore, error)
}

// parseTable reads whitespace separated rows of a word followed by numbers
func parseTable(data []byte, columns int) (map[string][]float64, error) {
	table := make(map[string][]float64)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) != columns+1 {
			return nil, fmt.Errorf("line %d: expected %d values, got %d", line, columns, len(fields)-1)
		}
		values := make([]float64, columns)
		for i := range values {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			values[i] = v
		}
		table[fields[0]] = values
	}
	return table, scanner.Err()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
