package vault

import (
	"github.com/ethereum/go-ethereum/common"
)

type engineState interface {
	// VaultLedger returns nil without error when the vault has not been
	// initialised.
	VaultLedger() (*Ledger, error)
	PutLedger(ledger *Ledger) error
	// Cooldown returns an empty queue for accounts that never unstaked.
	Cooldown(addr common.Address) (*CooldownQueue, error)
	PutCooldown(addr common.Address, queue *CooldownQueue) error
}

// TokenLedger is the external ledger that owns share balances and moves the
// base asset in and out of vault custody.
type TokenLedger interface {
	ShareSupply() (uint64, error)
	ShareBalance(addr common.Address) (uint64, error)
	AssetBalance(addr common.Address) (uint64, error)
	MintShares(to common.Address, amount uint64) error
	BurnShares(from common.Address, amount uint64) error
	TransferAssetsIn(from common.Address, amount uint64) error
	TransferAssetsOut(to common.Address, amount uint64) error
}

// PauseView reports whether vault mutations are currently halted.
type PauseView interface {
	IsPaused() bool
}

// Engine applies vault operations against the configured state and token
// ledger. Each call computes the full outcome on copies before it writes
// anything; the host is expected to run the call inside one transaction so
// that ledger side effects and state writes land together.
type Engine struct {
	state  engineState
	tokens TokenLedger
	pauses PauseView
	emit   func(Event)
}

// NewEngine returns an engine with no collaborators wired.
func NewEngine() *Engine {
	return &Engine{}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the external share and asset ledger.
func (e *Engine) SetTokens(tokens TokenLedger) { e.tokens = tokens }

// SetPauses installs the pause switch consulted before mutations.
func (e *Engine) SetPauses(p PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter registers the sink receiving events of successful operations.
func (e *Engine) SetEmitter(emit func(Event)) {
	if e == nil {
		return
	}
	e.emit = emit
}

func (e *Engine) publish(ev Event) {
	if e.emit != nil {
		e.emit(ev)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func (e *Engine) guard() error {
	if e.pauses != nil && e.pauses.IsPaused() {
		return ErrPaused
	}
	return nil
}

func (e *Engine) loadLedger() (*Ledger, error) {
	ledger, err := e.state.VaultLedger()
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, errNoLedger
	}
	return ledger.Clone(), nil
}

func (e *Engine) loadQueue(addr common.Address) (*CooldownQueue, error) {
	queue, err := e.state.Cooldown(addr)
	if err != nil {
		return nil, err
	}
	return queue.Clone(), nil
}

// StakeResult reports the outcome of a deposit.
type StakeResult struct {
	Assets      uint64
	Shares      uint64
	TotalAssets uint64
}

// Stake deposits assets from the caller and mints shares priced against the
// vested pool.
func (e *Engine) Stake(caller Caller, assets, now uint64) (*StakeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.Blacklisted {
		return nil, ErrBlacklisted
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if assets == 0 {
		return nil, ErrInvalidAmount
	}
	next, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	balance, err := e.tokens.AssetBalance(caller.Address)
	if err != nil {
		return nil, err
	}
	if balance < assets {
		return nil, ErrInsufficientAssets
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return nil, err
	}
	shares, err := next.Stake(assets, now, supply)
	if err != nil {
		return nil, err
	}
	newSupply, err := addU64(supply, shares)
	if err != nil {
		return nil, err
	}
	if err := next.CheckMinShares(newSupply); err != nil {
		return nil, err
	}

	if err := e.tokens.TransferAssetsIn(caller.Address, assets); err != nil {
		return nil, err
	}
	if err := e.tokens.MintShares(caller.Address, shares); err != nil {
		return nil, err
	}
	if err := e.state.PutLedger(next); err != nil {
		return nil, err
	}
	e.publish(Staked{
		Account:     caller.Address,
		Assets:      assets,
		Shares:      shares,
		TotalAssets: next.TotalAssets,
		Timestamp:   now,
	}.Event())
	return &StakeResult{Assets: assets, Shares: shares, TotalAssets: next.TotalAssets}, nil
}

// UnstakeResult reports the outcome of an unstake initiation.
type UnstakeResult struct {
	Shares      uint64
	Assets      uint64
	Maturity    uint64
	TotalAssets uint64
}

// StartUnstake burns the caller's shares and queues the redeemed assets
// behind the current cooldown.
func (e *Engine) StartUnstake(caller Caller, shares, now uint64) (*UnstakeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.Blacklisted {
		return nil, ErrBlacklisted
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidAmount
	}
	next, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	held, err := e.tokens.ShareBalance(caller.Address)
	if err != nil {
		return nil, err
	}
	if held < shares {
		return nil, ErrInsufficientShares
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return nil, err
	}
	queue, err := e.loadQueue(caller.Address)
	if err != nil {
		return nil, err
	}
	assets, maturity, err := next.StartUnstake(shares, now, supply)
	if err != nil {
		return nil, err
	}
	if err := next.CheckMinShares(supply - shares); err != nil {
		return nil, err
	}
	if err := queue.Enqueue(maturity, assets); err != nil {
		return nil, err
	}

	if err := e.tokens.BurnShares(caller.Address, shares); err != nil {
		return nil, err
	}
	if err := e.state.PutCooldown(caller.Address, queue); err != nil {
		return nil, err
	}
	if err := e.state.PutLedger(next); err != nil {
		return nil, err
	}
	e.publish(UnstakeStarted{
		Account:     caller.Address,
		Shares:      shares,
		Assets:      assets,
		Maturity:    maturity,
		TotalAssets: next.TotalAssets,
		Timestamp:   now,
	}.Event())
	return &UnstakeResult{Shares: shares, Assets: assets, Maturity: maturity, TotalAssets: next.TotalAssets}, nil
}

// Settle drains matured cooldown entries of addr into its available balance.
func (e *Engine) Settle(addr common.Address, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	queue, err := e.loadQueue(addr)
	if err != nil {
		return 0, err
	}
	before := queue.Available
	available, err := queue.Settle(now)
	if err != nil {
		return 0, err
	}
	if available == before {
		return available, nil
	}
	if err := e.state.PutCooldown(addr, queue); err != nil {
		return 0, err
	}
	e.publish(Settled{Account: addr, Released: available - before, Available: available, Timestamp: now}.Event())
	return available, nil
}

// WithdrawResult reports the outcome of a withdrawal.
type WithdrawResult struct {
	Assets    uint64
	Available uint64
}

// Withdraw settles the caller's queue and pays out amount from the matured
// balance. When amount exceeds the matured balance nothing is persisted,
// including the settlement.
func (e *Engine) Withdraw(caller Caller, amount, now uint64) (*WithdrawResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	queue, err := e.loadQueue(caller.Address)
	if err != nil {
		return nil, err
	}
	before := queue.Available
	settled, err := queue.Settle(now)
	if err != nil {
		return nil, err
	}
	if err := queue.Withdraw(amount); err != nil {
		return nil, err
	}

	if err := e.tokens.TransferAssetsOut(caller.Address, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutCooldown(caller.Address, queue); err != nil {
		return nil, err
	}
	if settled != before {
		e.publish(Settled{Account: caller.Address, Released: settled - before, Available: settled, Timestamp: now}.Event())
	}
	e.publish(Withdrawn{Account: caller.Address, Assets: amount, Available: queue.Available, Timestamp: now}.Event())
	return &WithdrawResult{Assets: amount, Available: queue.Available}, nil
}

// Reward transfers amount from an approved rewarder into the vault and
// starts a new vesting window for it.
func (e *Engine) Reward(caller Caller, amount, now uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !caller.CanReward() {
		return ErrNotRewarder
	}
	if err := e.guard(); err != nil {
		return err
	}
	next, err := e.loadLedger()
	if err != nil {
		return err
	}
	if err := next.Reward(amount, now); err != nil {
		return err
	}
	balance, err := e.tokens.AssetBalance(caller.Address)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientAssets
	}
	vestingEnd, err := addU64(now, next.Clock.VestingPeriod)
	if err != nil {
		return err
	}

	if err := e.tokens.TransferAssetsIn(caller.Address, amount); err != nil {
		return err
	}
	if err := e.state.PutLedger(next); err != nil {
		return err
	}
	e.publish(Rewarded{
		Rewarder:    caller.Address,
		Amount:      amount,
		TotalAssets: next.TotalAssets,
		VestingEnd:  vestingEnd,
		Timestamp:   now,
	}.Event())
	return nil
}

// SetCooldown updates the cooldown used by future unstakes.
func (e *Engine) SetCooldown(caller Caller, duration uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return ErrNotAdmin
	}
	next, err := e.loadLedger()
	if err != nil {
		return err
	}
	previous := next.Cooldown
	if err := next.SetCooldown(duration); err != nil {
		return err
	}
	if err := e.state.PutLedger(next); err != nil {
		return err
	}
	e.publish(ConfigUpdated{Kind: TypeCooldownUpdated, Admin: caller.Address, Previous: previous, Current: duration}.Event())
	return nil
}

// SetVestingPeriod updates the reward release window.
func (e *Engine) SetVestingPeriod(caller Caller, period, now uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return ErrNotAdmin
	}
	next, err := e.loadLedger()
	if err != nil {
		return err
	}
	previous := next.Clock.VestingPeriod
	if err := next.SetVestingPeriod(period, now); err != nil {
		return err
	}
	if err := e.state.PutLedger(next); err != nil {
		return err
	}
	e.publish(ConfigUpdated{Kind: TypeVestingPeriodUpdated, Admin: caller.Address, Previous: previous, Current: period}.Event())
	return nil
}

// RefreshCooldowns shortens the pending maturities of account to the current
// cooldown. It returns the number of entries that moved.
func (e *Engine) RefreshCooldowns(caller Caller, account common.Address, now uint64) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if !caller.IsAdmin() {
		return 0, ErrNotAdmin
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return 0, err
	}
	queue, err := e.loadQueue(account)
	if err != nil {
		return 0, err
	}
	changed, err := queue.RefreshCooldowns(now, ledger.Cooldown)
	if err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, nil
	}
	if err := e.state.PutCooldown(account, queue); err != nil {
		return 0, err
	}
	e.publish(CooldownsRefreshed{Account: account, Updated: changed, Cooldown: ledger.Cooldown, Timestamp: now}.Event())
	return changed, nil
}

// Summary is a read-only view of the vault at a point in time.
type Summary struct {
	TotalAssets      uint64
	Unvested         uint64
	EffectiveAssets  uint64
	ShareSupply      uint64
	VestingAmount    uint64
	LastDistribution uint64
	VestingPeriod    uint64
	Cooldown         uint64
	MaxCooldown      uint64
	MinShares        uint64
	Offset           uint8
}

// Summary reports the vault state evaluated at now.
func (e *Engine) Summary(now uint64) (*Summary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	unvested, err := ledger.Unvested(now)
	if err != nil {
		return nil, err
	}
	effective, err := ledger.EffectiveAssets(now)
	if err != nil {
		return nil, err
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalAssets:      ledger.TotalAssets,
		Unvested:         unvested,
		EffectiveAssets:  effective,
		ShareSupply:      supply,
		VestingAmount:    ledger.Clock.VestingAmount,
		LastDistribution: ledger.Clock.LastDistribution,
		VestingPeriod:    ledger.Clock.VestingPeriod,
		Cooldown:         ledger.Cooldown,
		MaxCooldown:      ledger.MaxCooldown,
		MinShares:        ledger.MinShares,
		Offset:           ledger.Offset,
	}, nil
}

// Position is a read-only view of one account.
type Position struct {
	Address    common.Address
	Shares     uint64
	ShareValue uint64
	Available  uint64
	Pending    uint64
	// NextMaturity is the earliest pending maturity, zero when nothing is
	// cooling down.
	NextMaturity uint64
	Entries      []CooldownEntry
}

// Position reports the holdings of addr as they would look after a settle
// at now. Nothing is persisted.
func (e *Engine) Position(addr common.Address, now uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	shares, err := e.tokens.ShareBalance(addr)
	if err != nil {
		return nil, err
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return nil, err
	}
	var value uint64
	if shares > 0 {
		effective, err := ledger.EffectiveAssets(now)
		if err != nil {
			return nil, err
		}
		if value, err = AssetsForShares(shares, supply, effective, ledger.Offset); err != nil {
			return nil, err
		}
	}
	queue, err := e.loadQueue(addr)
	if err != nil {
		return nil, err
	}
	available, err := queue.Settle(now)
	if err != nil {
		return nil, err
	}
	pending, err := queue.Pending()
	if err != nil {
		return nil, err
	}
	next, _ := queue.NextMaturity()
	return &Position{
		Address:      addr,
		Shares:       shares,
		ShareValue:   value,
		Available:    available,
		Pending:      pending,
		NextMaturity: next,
		Entries:      queue.Entries,
	}, nil
}

// PreviewStake reports the shares a deposit of assets would mint at now.
func (e *Engine) PreviewStake(assets, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return 0, err
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return 0, err
	}
	return ledger.PreviewStake(assets, now, supply)
}

// PreviewUnstake reports the assets a redemption of shares would queue at now.
func (e *Engine) PreviewUnstake(shares, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return 0, err
	}
	supply, err := e.tokens.ShareSupply()
	if err != nil {
		return 0, err
	}
	return ledger.PreviewUnstake(shares, now, supply)
}
