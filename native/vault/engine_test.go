package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type memoryEngineState struct {
	ledger *Ledger
	queues map[common.Address]*CooldownQueue
	writes int
}

func newMemoryEngineState(ledger *Ledger) *memoryEngineState {
	return &memoryEngineState{ledger: ledger, queues: make(map[common.Address]*CooldownQueue)}
}

func (m *memoryEngineState) VaultLedger() (*Ledger, error) {
	return m.ledger.Clone(), nil
}

func (m *memoryEngineState) PutLedger(ledger *Ledger) error {
	m.ledger = ledger.Clone()
	m.writes++
	return nil
}

func (m *memoryEngineState) Cooldown(addr common.Address) (*CooldownQueue, error) {
	return m.queues[addr].Clone(), nil
}

func (m *memoryEngineState) PutCooldown(addr common.Address, queue *CooldownQueue) error {
	m.queues[addr] = queue.Clone()
	m.writes++
	return nil
}

type memoryTokens struct {
	supply  uint64
	shares  map[common.Address]uint64
	assets  map[common.Address]uint64
	custody uint64
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{shares: make(map[common.Address]uint64), assets: make(map[common.Address]uint64)}
}

func (m *memoryTokens) ShareSupply() (uint64, error) { return m.supply, nil }

func (m *memoryTokens) ShareBalance(addr common.Address) (uint64, error) {
	return m.shares[addr], nil
}

func (m *memoryTokens) AssetBalance(addr common.Address) (uint64, error) {
	return m.assets[addr], nil
}

func (m *memoryTokens) MintShares(to common.Address, amount uint64) error {
	m.shares[to] += amount
	m.supply += amount
	return nil
}

func (m *memoryTokens) BurnShares(from common.Address, amount uint64) error {
	if m.shares[from] < amount {
		return ErrInsufficientShares
	}
	m.shares[from] -= amount
	m.supply -= amount
	return nil
}

func (m *memoryTokens) TransferAssetsIn(from common.Address, amount uint64) error {
	if m.assets[from] < amount {
		return ErrInsufficientAssets
	}
	m.assets[from] -= amount
	m.custody += amount
	return nil
}

func (m *memoryTokens) TransferAssetsOut(to common.Address, amount uint64) error {
	if m.custody < amount {
		return ErrInsufficientAssets
	}
	m.custody -= amount
	m.assets[to] += amount
	return nil
}

type staticPause bool

func (p staticPause) IsPaused() bool { return bool(p) }

type engineFixture struct {
	engine *Engine
	state  *memoryEngineState
	tokens *memoryTokens
	events []Event
}

func newEngineFixture(t *testing.T, params Params) *engineFixture {
	t.Helper()
	ledger, err := NewLedger(params, 0)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	fx := &engineFixture{
		engine: NewEngine(),
		state:  newMemoryEngineState(ledger),
		tokens: newMemoryTokens(),
	}
	fx.engine.SetState(fx.state)
	fx.engine.SetTokens(fx.tokens)
	fx.engine.SetEmitter(func(ev Event) { fx.events = append(fx.events, ev) })
	return fx
}

func user(a common.Address) Caller { return Caller{Address: a, Role: RoleRegular} }

func TestEngineRequiresCollaborators(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Stake(user(addr(1)), 1, 0); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	engine.SetState(newMemoryEngineState(nil))
	if _, err := engine.Stake(user(addr(1)), 1, 0); !errors.Is(err, errNilTokens) {
		t.Fatalf("expected errNilTokens, got %v", err)
	}
	engine.SetTokens(newMemoryTokens())
	if _, err := engine.Stake(user(addr(1)), 1, 0); !errors.Is(err, errNoLedger) {
		t.Fatalf("expected errNoLedger, got %v", err)
	}
}

func TestEngineStakeAndUnstakeFlow(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	alice := addr(1)
	fx.tokens.assets[alice] = 5_000

	staked, err := fx.engine.Stake(user(alice), 1_000, 100)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if staked.Shares != 1_000 || fx.tokens.shares[alice] != 1_000 || fx.tokens.custody != 1_000 {
		t.Fatalf("unexpected stake outcome %+v tokens=%+v", staked, fx.tokens)
	}

	unstaked, err := fx.engine.StartUnstake(user(alice), 400, 200)
	if err != nil {
		t.Fatalf("start unstake: %v", err)
	}
	if unstaked.Assets != 400 || unstaked.Maturity != 3_800 {
		t.Fatalf("unexpected unstake outcome %+v", unstaked)
	}
	if fx.tokens.shares[alice] != 600 || fx.tokens.supply != 600 {
		t.Fatalf("expected shares burned, got balance=%d supply=%d", fx.tokens.shares[alice], fx.tokens.supply)
	}
	if fx.state.ledger.TotalAssets != 600 {
		t.Fatalf("expected 600 total assets, got %d", fx.state.ledger.TotalAssets)
	}

	if _, err := fx.engine.Withdraw(user(alice), 400, 3_799); !errors.Is(err, ErrAssetsUnavailable) {
		t.Fatalf("expected ErrAssetsUnavailable, got %v", err)
	}
	if len(fx.state.queues[alice].Entries) != 1 {
		t.Fatalf("failed withdraw must not persist settlement")
	}

	out, err := fx.engine.Withdraw(user(alice), 150, 3_800)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Available != 250 || fx.tokens.assets[alice] != 4_150 {
		t.Fatalf("unexpected withdraw outcome %+v balance=%d", out, fx.tokens.assets[alice])
	}

	wantTypes := []string{TypeStaked, TypeUnstakeStarted, TypeSettled, TypeWithdrawn}
	if len(fx.events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(fx.events))
	}
	for i, want := range wantTypes {
		if fx.events[i].Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, fx.events[i].Type)
		}
		if fx.events[i].Account() != alice.Hex() {
			t.Fatalf("event %d: expected account %s, got %s", i, alice.Hex(), fx.events[i].Account())
		}
	}
}

func TestEngineBlacklistedCallerLeavesStateUntouched(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	mallory := addr(7)
	fx.tokens.assets[mallory] = 1_000
	fx.tokens.shares[mallory] = 10
	fx.tokens.supply = 10

	caller := Caller{Address: mallory, Blacklisted: true}
	if _, err := fx.engine.Stake(caller, 100, 1); !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("expected ErrBlacklisted on stake, got %v", err)
	}
	if _, err := fx.engine.StartUnstake(caller, 5, 1); !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("expected ErrBlacklisted on unstake, got %v", err)
	}
	if fx.state.writes != 0 || len(fx.events) != 0 {
		t.Fatalf("blacklisted calls mutated state: writes=%d events=%d", fx.state.writes, len(fx.events))
	}
	if fx.tokens.assets[mallory] != 1_000 || fx.tokens.shares[mallory] != 10 {
		t.Fatalf("blacklisted calls moved balances")
	}
}

func TestEnginePauseBlocksMutations(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	fx.engine.SetPauses(staticPause(true))
	alice := addr(1)
	fx.tokens.assets[alice] = 100

	if _, err := fx.engine.Stake(user(alice), 100, 1); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if _, err := fx.engine.Withdraw(user(alice), 1, 1); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on withdraw, got %v", err)
	}
	admin := Caller{Address: addr(2), Role: RoleAdmin}
	if err := fx.engine.Reward(admin, 1, 1); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on reward, got %v", err)
	}
	if _, err := fx.engine.Settle(alice, 1); err != nil {
		t.Fatalf("settle must not be paused: %v", err)
	}
}

func TestEngineStakeRejections(t *testing.T) {
	params := testParams()
	params.MinShares = 1_000
	fx := newEngineFixture(t, params)
	alice := addr(1)
	fx.tokens.assets[alice] = 500

	if _, err := fx.engine.Stake(user(alice), 0, 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := fx.engine.Stake(user(alice), 501, 1); !errors.Is(err, ErrInsufficientAssets) {
		t.Fatalf("expected ErrInsufficientAssets, got %v", err)
	}
	if _, err := fx.engine.Stake(user(alice), 500, 1); !errors.Is(err, ErrMinSharesViolation) {
		t.Fatalf("expected ErrMinSharesViolation, got %v", err)
	}
	if fx.tokens.custody != 0 || fx.state.writes != 0 {
		t.Fatalf("rejected stakes moved funds")
	}
}

func TestEngineUnstakeKeepsMinimumSupply(t *testing.T) {
	params := testParams()
	params.MinShares = 1_000
	fx := newEngineFixture(t, params)
	alice := addr(1)
	fx.tokens.assets[alice] = 2_000
	if _, err := fx.engine.Stake(user(alice), 2_000, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := fx.engine.StartUnstake(user(alice), 1_500, 2); !errors.Is(err, ErrMinSharesViolation) {
		t.Fatalf("expected ErrMinSharesViolation, got %v", err)
	}
	if _, err := fx.engine.StartUnstake(user(alice), 2_001, 2); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := fx.engine.StartUnstake(user(alice), 2_000, 2); err != nil {
		t.Fatalf("full exit must be allowed: %v", err)
	}
}

func TestEngineRewardAuthorization(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	rewarder := Caller{Address: addr(3), Role: RoleRewarder}
	fx.tokens.assets[rewarder.Address] = 10_000

	if err := fx.engine.Reward(user(addr(4)), 100, 1); !errors.Is(err, ErrNotRewarder) {
		t.Fatalf("expected ErrNotRewarder, got %v", err)
	}
	if err := fx.engine.Reward(rewarder, 20_000, 1); !errors.Is(err, ErrInsufficientAssets) {
		t.Fatalf("expected ErrInsufficientAssets, got %v", err)
	}
	if err := fx.engine.Reward(rewarder, 8_640, 1); err != nil {
		t.Fatalf("reward: %v", err)
	}
	if err := fx.engine.Reward(rewarder, 1, 2); !errors.Is(err, ErrRewardVestingOngoing) {
		t.Fatalf("expected ErrRewardVestingOngoing, got %v", err)
	}
	if fx.tokens.custody != 8_640 || fx.state.ledger.TotalAssets != 8_640 {
		t.Fatalf("unexpected custody=%d total=%d", fx.tokens.custody, fx.state.ledger.TotalAssets)
	}
	if last := fx.events[len(fx.events)-1]; last.Type != TypeRewarded || last.Attributes["vestingEnd"] != "28801" {
		t.Fatalf("unexpected reward event %+v", last)
	}
}

func TestEngineRewardDoesNotRepriceInstantly(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	alice, bob := addr(1), addr(2)
	fx.tokens.assets[alice] = 10_000
	fx.tokens.assets[bob] = 10_000
	admin := Caller{Address: addr(9), Role: RoleAdmin}
	fx.tokens.assets[admin.Address] = 10_000

	if _, err := fx.engine.Stake(user(alice), 10_000, 0); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if err := fx.engine.Reward(admin, 10_000, 0); err != nil {
		t.Fatalf("reward: %v", err)
	}
	// Staking right after the reward must not capture its unvested part.
	staked, err := fx.engine.Stake(user(bob), 10_000, 0)
	if err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	if staked.Shares != 10_000 {
		t.Fatalf("expected bob priced against vested pool, got %d shares", staked.Shares)
	}
	preview, err := fx.engine.PreviewUnstake(10_000, 0)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview > 10_000 {
		t.Fatalf("instant round trip profitable: %d", preview)
	}
}

func TestEngineAdminOperations(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	admin := Caller{Address: addr(9), Role: RoleAdmin}
	alice := addr(1)
	fx.tokens.assets[alice] = 1_000

	if err := fx.engine.SetCooldown(user(alice), 10); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := fx.engine.SetVestingPeriod(Caller{Address: alice, Role: RoleRewarder}, 10, 0); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, err := fx.engine.Stake(user(alice), 1_000, 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := fx.engine.StartUnstake(user(alice), 500, 100); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if err := fx.engine.SetCooldown(admin, 60); err != nil {
		t.Fatalf("set cooldown: %v", err)
	}
	changed, err := fx.engine.RefreshCooldowns(admin, alice, 200)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 1 || fx.state.queues[alice].Entries[0].Maturity != 260 {
		t.Fatalf("expected maturity pulled to 260, got %+v", fx.state.queues[alice].Entries)
	}
	available, err := fx.engine.Settle(alice, 260)
	if err != nil || available != 500 {
		t.Fatalf("expected 500 settled, got %d (%v)", available, err)
	}
	if err := fx.engine.SetVestingPeriod(admin, 3_600, 300); err != nil {
		t.Fatalf("set vesting period: %v", err)
	}
	summary, err := fx.engine.Summary(300)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Cooldown != 60 || summary.VestingPeriod != 3_600 || summary.TotalAssets != 500 || summary.ShareSupply != 500 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestEnginePositionDoesNotPersist(t *testing.T) {
	fx := newEngineFixture(t, testParams())
	alice := addr(1)
	fx.tokens.assets[alice] = 1_000
	if _, err := fx.engine.Stake(user(alice), 1_000, 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := fx.engine.StartUnstake(user(alice), 300, 0); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	writes := fx.state.writes
	cooling, err := fx.engine.Position(alice, 100)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if cooling.Pending != 300 || cooling.NextMaturity != 3_600 {
		t.Fatalf("unexpected cooling position %+v", cooling)
	}
	position, err := fx.engine.Position(alice, 3_600)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.Shares != 700 || position.ShareValue != 700 || position.Available != 300 || position.Pending != 0 || position.NextMaturity != 0 {
		t.Fatalf("unexpected position %+v", position)
	}
	if fx.state.writes != writes || len(fx.state.queues[alice].Entries) != 1 {
		t.Fatalf("position persisted a settlement")
	}
}

func TestErrorClasses(t *testing.T) {
	if !IsAuthorization(ErrNotAdmin) || IsAuthorization(ErrPaused) {
		t.Fatalf("authorization class mismatch")
	}
	if !IsAvailability(ErrAssetsUnavailable) || IsAvailability(ErrInvalidAmount) {
		t.Fatalf("availability class mismatch")
	}
	if !IsValidation(ErrZeroShares) || IsValidation(ErrBlacklisted) {
		t.Fatalf("validation class mismatch")
	}
	ev := AccessUpdated{Kind: TypePauseUpdated, Admin: addr(1), Paused: true}.Event()
	if ev.Attributes["paused"] != "true" || ev.Account() != addr(1).Hex() {
		t.Fatalf("unexpected access event %+v", ev)
	}
}
