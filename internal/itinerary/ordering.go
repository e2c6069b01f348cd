package itinerary

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// nextSortIndex returns one past the highest sort_index among the children of
// parentID, or 0 when there are none. Freed slots are never reused.
func nextSortIndex(tx *gorm.DB, model any, parentColumn, parentID string) (int, error) {
	var maxIndex int
	row := tx.Model(model).
		Select("COALESCE(MAX(sort_index), -1)").
		Where(parentColumn+" = ?", parentID).
		Row()
	if err := row.Scan(&maxIndex); err != nil {
		return 0, err
	}
	return maxIndex + 1, nil
}

// orderedIDs returns the ids of the children of parentID ordered by sort_index.
func orderedIDs(tx *gorm.DB, model any, parentColumn, parentID string) ([]string, error) {
	var ids []string
	err := tx.Model(model).
		Where(parentColumn+" = ?", parentID).
		Order("sort_index ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// renumber assigns sort_index 0..n-1 to ids in the given order. Rows are parked
// at negative indexes first so no intermediate write collides on the
// (parent, sort_index) unique index, which sqlite cannot defer.
func renumber(tx *gorm.DB, model any, ids []string, now time.Time) error {
	for i, id := range ids {
		if err := tx.Model(model).Where("id = ?", id).UpdateColumn("sort_index", -(i + 1)).Error; err != nil {
			return err
		}
	}
	for i, id := range ids {
		if err := tx.Model(model).Where("id = ?", id).UpdateColumns(map[string]any{
			"sort_index": i,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// compact reloads the remaining children of parentID and renumbers them densely.
func compact(tx *gorm.DB, model any, parentColumn, parentID string, now time.Time) error {
	ids, err := orderedIDs(tx, model, parentColumn, parentID)
	if err != nil {
		return err
	}
	return renumber(tx, model, ids, now)
}

// IndexRangeError reports a reorder index outside the current list.
type IndexRangeError struct {
	Field string
	Index int
	Count int
}

func (e *IndexRangeError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("%s %d is out of range: the list is empty", e.Field, e.Index)
	}
	return fmt.Sprintf("%s must be between 0 and %d, got %d", e.Field, e.Count-1, e.Index)
}

// splice moves the element at from to position to, shifting the elements in
// between. It is a list move, not a swap.
func splice(ids []string, from, to int) ([]string, error) {
	if from < 0 || from >= len(ids) {
		return nil, &IndexRangeError{Field: "from_index", Index: from, Count: len(ids)}
	}
	if to < 0 || to >= len(ids) {
		return nil, &IndexRangeError{Field: "to_index", Index: to, Count: len(ids)}
	}
	moved := ids[from]
	result := make([]string, 0, len(ids))
	result = append(result, ids[:from]...)
	result = append(result, ids[from+1:]...)
	result = append(result[:to], append([]string{moved}, result[to:]...)...)
	return result, nil
}
