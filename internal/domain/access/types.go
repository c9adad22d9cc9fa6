package access

type AccessState string

const (
	AccessFull    AccessState = "full"
	AccessPending AccessState = "pending"
	AccessLimited AccessState = "limited"
	AccessLocked  AccessState = "locked"
)
