package enums

// ActivityAction names an audited user action.
type ActivityAction string

const (
	ActivityLogin            ActivityAction = "login"
	ActivityIssuanceCreated  ActivityAction = "issuance_created"
	ActivityIssuanceReturned ActivityAction = "issuance_returned"
	ActivityIssuanceDeleted  ActivityAction = "issuance_deleted"
	ActivityEquipmentCreated ActivityAction = "equipment_created"
	ActivityEquipmentUpdated ActivityAction = "equipment_updated"
	ActivityEquipmentDeleted ActivityAction = "equipment_deleted"
)
