package common

//go:generate enumer -json -sql -type RecordType -trimprefix RecordType

// RecordType is the kind of record owning a geometry
type RecordType int

const (
	RecordTypeParcel RecordType = iota
	RecordTypeOperatorParcel
)

// Prefix of the storage keys of the files of this kind of record
func (r RecordType) Prefix() string {
	switch r {
	case RecordTypeOperatorParcel:
		return "operator_parcels"
	}
	return "parcels"
}
