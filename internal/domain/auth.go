package domain

// SubjectType identifies the kind of actor behind a mutation.
type SubjectType string

const (
	SubjectTypeCustomer SubjectType = "CUSTOMER"
	SubjectTypeBarber   SubjectType = "BARBER"
	SubjectTypeSystem   SubjectType = "SYSTEM"
)
