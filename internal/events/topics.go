package events

// Event topics, one per observable state transition.
const (
	TopicResourceCreated     = "resource.created"
	TopicResourceUpdated     = "resource.updated"
	TopicResourceDeactivated = "resource.deactivated"

	TopicAllocationRequested = "allocation.requested"
	TopicAllocationFulfilled = "allocation.fulfilled"
	TopicAllocationRevoked   = "allocation.revoked"
	TopicAllocationBonus     = "allocation.bonus"
	TopicFundsWithdrawn      = "funds.withdrawn"

	TopicAssetCreated     = "asset.created"
	TopicAssetTransferred = "asset.transferred"
	TopicAssetApproved    = "asset.approved"
	TopicAssetFrozen      = "asset.frozen"
	TopicAssetUnfrozen    = "asset.unfrozen"
	TopicAssetDestroyed   = "asset.destroyed"

	TopicMaintenanceRequested = "maintenance.requested"
	TopicMaintenanceApproved  = "maintenance.approved"
	TopicMaintenanceStarted   = "maintenance.started"
	TopicMaintenanceCompleted = "maintenance.completed"
	TopicMaintenanceCanceled  = "maintenance.canceled"
	TopicMaintenanceRejected  = "maintenance.rejected"
	TopicMaintenanceFunded    = "maintenance.funded"

	TopicDeviceRegistered         = "device.registered"
	TopicDeviceActivated          = "device.activated"
	TopicDeviceDeactivated        = "device.deactivated"
	TopicDeviceSenderAuthorized   = "device.sender_authorized"
	TopicDeviceSenderRevoked      = "device.sender_revoked"
	TopicDeviceDataStored         = "device.data_stored"
	TopicDeviceDataRemoved        = "device.data_removed"
	TopicDeviceRemoved            = "device.removed"
	TopicDeviceOwnershipTransfer  = "device.ownership_transferred"

	TopicOracleRegistered     = "oracle.registered"
	TopicOracleUpdated        = "oracle.updated"
	TopicOracleDeactivated    = "oracle.deactivated"
	TopicOracleRemoved        = "oracle.removed"
	TopicOracleQuorumChanged  = "oracle.quorum_changed"
	TopicOracleValueAccepted  = "oracle.value.accepted"
	TopicOracleOutOfTolerance = "oracle.value.out_of_tolerance"

	TopicTokenMinted   = "token.minted"
	TopicTokenApproved = "token.approved"
)
