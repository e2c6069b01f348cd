package itinerary

import (
	"errors"
	"reflect"
	"strconv"
	"testing"
)

func TestSpliceMovesElement(t *testing.T) {
	testCases := []struct {
		name     string
		from     int
		to       int
		expected []string
	}{
		{name: "last to first", from: 2, to: 0, expected: []string{"c", "a", "b"}},
		{name: "first to last", from: 0, to: 2, expected: []string{"b", "c", "a"}},
		{name: "adjacent", from: 0, to: 1, expected: []string{"b", "a", "c"}},
		{name: "noop", from: 1, to: 1, expected: []string{"a", "b", "c"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := splice([]string{"a", "b", "c"}, testCase.from, testCase.to)
			if err != nil {
				t.Fatalf("splice failed: %v", err)
			}
			if !reflect.DeepEqual(result, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, result)
			}
		})
	}
}

func TestSpliceRejectsOutOfRange(t *testing.T) {
	testCases := []struct {
		name  string
		from  int
		to    int
		field string
	}{
		{name: "negative from", from: -1, to: 0, field: "from_index"},
		{name: "from past end", from: 3, to: 0, field: "from_index"},
		{name: "to past end", from: 0, to: 3, field: "to_index"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := splice([]string{"a", "b", "c"}, testCase.from, testCase.to)
			var rangeErr *IndexRangeError
			if !errors.As(err, &rangeErr) {
				t.Fatalf("expected index range error, got %v", err)
			}
			if rangeErr.Field != testCase.field {
				t.Fatalf("expected field %s, got %s", testCase.field, rangeErr.Field)
			}
			if rangeErr.Error() != testCase.field+" must be between 0 and 2, got "+strconv.Itoa(rangeErr.Index) {
				t.Fatalf("unexpected message %q", rangeErr.Error())
			}
		})
	}
}
