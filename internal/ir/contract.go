package ir

// ContractKind distinguishes the two contract variants the registry creates.
type ContractKind string

const (
	ContractS33D   ContractKind = "S33D"
	ContractSprout ContractKind = "Sprout"
)

// ContractRecord is the registry's record of a created contract.
// S33D and Sprout share one shape; Parent is zero for S33D records and
// Name/Symbol are empty for Sprout records.
type ContractRecord struct {
	Kind      ContractKind `json:"kind"`
	ID        uint64       `json:"id"`
	Address   Address      `json:"address"`
	Owner     Address      `json:"owner"`
	Parent    Address      `json:"parent"`
	Name      string       `json:"name,omitempty"`
	Symbol    string       `json:"symbol,omitempty"`
	CreatedBy Address      `json:"created_by"`
}
