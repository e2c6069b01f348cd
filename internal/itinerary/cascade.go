package itinerary

import "gorm.io/gorm"

// deleteStops removes stops together with everything they own. Movements that
// touch any of the stops go with them; feedback keeps its rows and loses the
// activity reference.
func deleteStops(tx *gorm.DB, stopIDs []string) error {
	if len(stopIDs) == 0 {
		return nil
	}
	var activityIDs []string
	if err := tx.Model(&Activity{}).Where("trip_stop_id IN ?", stopIDs).Pluck("id", &activityIDs).Error; err != nil {
		return err
	}
	if err := deleteActivities(tx, activityIDs); err != nil {
		return err
	}
	if err := tx.Where("from_stop_id IN ? OR to_stop_id IN ?", stopIDs, stopIDs).Delete(&Movement{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", stopIDs).Delete(&Stop{}).Error
}

// deleteActivities removes activities and their photos.
func deleteActivities(tx *gorm.DB, activityIDs []string) error {
	if len(activityIDs) == 0 {
		return nil
	}
	if err := tx.Model(&Feedback{}).Where("activity_id IN ?", activityIDs).UpdateColumn("activity_id", nil).Error; err != nil {
		return err
	}
	if err := tx.Where("activity_id IN ?", activityIDs).Delete(&Photo{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", activityIDs).Delete(&Activity{}).Error
}

// deleteTripGraph removes every row owned by tripID, the trip included.
func deleteTripGraph(tx *gorm.DB, tripID string) error {
	if err := tx.Where("trip_id = ?", tripID).Delete(&Feedback{}).Error; err != nil {
		return err
	}
	if err := tx.Where("trip_id = ?", tripID).Delete(&ShareToken{}).Error; err != nil {
		return err
	}
	if err := tx.Where("trip_id = ?", tripID).Delete(&Version{}).Error; err != nil {
		return err
	}
	if err := tx.Where("trip_id = ?", tripID).Delete(&Movement{}).Error; err != nil {
		return err
	}
	var stopIDs []string
	if err := tx.Model(&Stop{}).Where("trip_id = ?", tripID).Pluck("id", &stopIDs).Error; err != nil {
		return err
	}
	if err := deleteStops(tx, stopIDs); err != nil {
		return err
	}
	return tx.Where("id = ?", tripID).Delete(&Trip{}).Error
}
