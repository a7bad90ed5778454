package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// MetricsEndpoint exposes the Prometheus metrics
	MetricsEndpoint = "/metrics"

	// DepositEndpoint moves public tokens into a new commitment
	DepositEndpoint = "/deposit"
	// TransferEndpoint sends part of the shielded balance to another account
	TransferEndpoint = "/transfer"
	// WithdrawEndpoint moves part of the shielded balance back to public tokens
	WithdrawEndpoint = "/withdraw"
	// JoinEndpoint merges the two largest owned commitments
	JoinEndpoint = "/join"
	// BalanceEndpoint returns the shielded balance of the account
	BalanceEndpoint = "/balance"

	// MintEndpoint mints test tokens to the account
	MintEndpoint = "/mint"
	// ApproveEndpoint approves the shield to spend the account tokens
	ApproveEndpoint = "/approve"
	// BalanceOfEndpoint returns the public token balance of an account
	AccountURLParam   = "account"
	BalanceOfEndpoint = "/balanceOf/{" + AccountURLParam + "}"

	// CommitmentsEndpoint lists every known commitment
	CommitmentsEndpoint = "/commitments"
	// CommitmentsByStateEndpoint lists the commitments of a state variable
	StateNameURLParam          = "name"
	MappingKeyURLParam         = "mappingKey"
	CommitmentsByStateEndpoint = "/commitments/{" + StateNameURLParam + "}/{" + MappingKeyURLParam + "}"
)
