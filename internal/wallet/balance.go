package wallet

// Balance is the TXDB's running view of a wallet's funds. Every field is
// maintained incrementally as the delta of touched coins, never by full
// recomputation over the coin set.
type Balance struct {
	// Unconfirmed is the value of every output the wallet owns, confirmed
	// or still in the mempool, minus values spent by confirmed-or-pending
	// spends. This is the wallet's full spendable-soon total.
	Unconfirmed uint64

	// Confirmed is the same quantity restricted to confirmed outputs and
	// confirmed spends only.
	Confirmed uint64

	// LockedUnconfirmed/LockedConfirmed are the subsets of Unconfirmed/
	// Confirmed whose covenant currently holds the coin out of ordinary
	// spendable balance — see covenant.Type.IsLocking.
	LockedUnconfirmed uint64
	LockedConfirmed   uint64

	// TxCount is the number of distinct transactions the wallet has ever
	// seen (pending or confirmed, until erased).
	TxCount uint64

	// CoinCount is the number of currently-unspent outputs the wallet owns.
	CoinCount uint64
}
