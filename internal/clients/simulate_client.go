package clients

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/estate/internal/domain"
	"github.com/vadiminshakov/estate/internal/finance"
	"github.com/vadiminshakov/estate/internal/storage/simstate"
)

const (
	simulatedMonth = 30 * 24 * time.Hour
	simulatedDay   = 24 * time.Hour
)

// SimulateRegistry is an in-memory property registry that enforces the same
// rules as the on-chain contract. Mutations take effect when their
// submission is awaited, which plays the role of block inclusion.
type SimulateRegistry struct {
	mu     sync.Mutex
	logger *zap.Logger
	store  *simstate.Store
	now    func() time.Time

	nextID   uint64
	order    []domain.AssetID
	assets   map[domain.AssetID]*domain.AssetRecord
	holdings map[domain.AssetID]map[common.Address]*domain.Holding
	balances map[common.Address]*big.Int

	txSeq       uint64
	submissions int

	failEnumeration error
	failBalance     error
	failAssets      map[domain.AssetID]error
	failHoldings    map[domain.AssetID]error
}

// NewSimulateRegistry creates a registry, restoring state from store when present.
// A nil store keeps everything in memory.
func NewSimulateRegistry(logger *zap.Logger, store *simstate.Store) (*SimulateRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &SimulateRegistry{
		logger:       logger,
		store:        store,
		now:          time.Now,
		assets:       make(map[domain.AssetID]*domain.AssetRecord),
		holdings:     make(map[domain.AssetID]map[common.Address]*domain.Holding),
		balances:     make(map[common.Address]*big.Int),
		failAssets:   make(map[domain.AssetID]error),
		failHoldings: make(map[domain.AssetID]error),
	}

	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state != nil {
		if err := r.restore(*state); err != nil {
			return nil, err
		}
		logger.Info("restored simulated registry",
			zap.Int("assets", len(r.order)),
			zap.Uint64("next_id", r.nextID))
	}

	return r, nil
}

// Connect returns a client acting as account. The zero address yields a
// read-only client whose mutations fail with ErrNotConnected.
func (r *SimulateRegistry) Connect(account common.Address) *SimulateClient {
	return &SimulateClient{registry: r, account: account}
}

// SetClock replaces the time source.
func (r *SimulateRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Seed stores rec as is, bypassing every rule. Useful for fixtures and
// for reproducing corrupt registry data.
func (r *SimulateRegistry) Seed(rec domain.AssetRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	cp := cloneRecord(rec)
	r.assets[rec.ID] = &cp
	if uint64(rec.ID) > r.nextID {
		r.nextID = uint64(rec.ID)
	}
}

// SetHolding overrides the shares held by addr in asset id.
func (r *SimulateRegistry) SetHolding(id domain.AssetID, addr common.Address, shares uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holdingLocked(id, addr).SharesOwned = shares
}

// Credit adds amount to the withdrawable balance of addr.
func (r *SimulateRegistry) Credit(addr common.Address, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creditLocked(addr, amount)
}

// FailEnumeration makes AssetIDs fail with err until cleared with nil.
func (r *SimulateRegistry) FailEnumeration(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failEnumeration = err
}

// FailAsset makes Asset(id) fail with err until cleared with nil.
func (r *SimulateRegistry) FailAsset(id domain.AssetID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setFault(r.failAssets, id, err)
}

// FailHolding makes Holding(id, *) fail with err until cleared with nil.
func (r *SimulateRegistry) FailHolding(id domain.AssetID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	setFault(r.failHoldings, id, err)
}

// FailBalance makes Balance fail with err until cleared with nil.
func (r *SimulateRegistry) FailBalance(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failBalance = err
}

// Submissions returns how many mutating calls reached the registry.
func (r *SimulateRegistry) Submissions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submissions
}

func setFault(m map[domain.AssetID]error, id domain.AssetID, err error) {
	if err == nil {
		delete(m, id)
		return
	}
	m[id] = err
}

// SimulateClient is one account's connection to a SimulateRegistry.
type SimulateClient struct {
	registry *SimulateRegistry
	account  common.Address
}

// Account returns the connected account, or the zero address.
func (c *SimulateClient) Account() common.Address { return c.account }

// Registry returns the backing registry.
func (c *SimulateClient) Registry() *SimulateRegistry { return c.registry }

// AssetIDs enumerates every asset id in creation order, destroyed ones included.
func (c *SimulateClient) AssetIDs(ctx context.Context) ([]domain.AssetID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failEnumeration != nil {
		return nil, r.failEnumeration
	}

	return append([]domain.AssetID(nil), r.order...), nil
}

// Asset reads one asset record.
func (c *SimulateClient) Asset(ctx context.Context, id domain.AssetID) (domain.AssetRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssetRecord{}, err
	}

	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failAssets[id]; ok {
		return domain.AssetRecord{}, err
	}

	rec, ok := r.assets[id]
	if !ok {
		return domain.AssetRecord{}, errors.Wrapf(domain.ErrNotFound, "asset %s", id)
	}

	return cloneRecord(*rec), nil
}

// Holding reads the position of addr in asset id. Unknown pairs read as empty.
func (c *SimulateClient) Holding(ctx context.Context, id domain.AssetID, addr common.Address) (domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return domain.Holding{}, err
	}

	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failHoldings[id]; ok {
		return domain.Holding{}, err
	}

	h, ok := r.holdings[id][addr]
	if !ok {
		return domain.EmptyHolding(), nil
	}

	return domain.Holding{SharesOwned: h.SharesOwned, RentWithdrawn: new(big.Int).Set(h.RentWithdrawn)}, nil
}

// Balance reads the withdrawable balance of addr.
func (c *SimulateClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failBalance != nil {
		return nil, r.failBalance
	}

	if bal, ok := r.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}

	return new(big.Int), nil
}

// CreateAsset lists a new asset owned by the connected account.
func (c *SimulateClient) CreateAsset(ctx context.Context, info domain.AssetInfo) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		r.nextID++
		id := domain.AssetID(r.nextID)
		r.order = append(r.order, id)
		r.assets[id] = &domain.AssetRecord{
			ID:            id,
			Info:          info,
			Status:        domain.StatusIdle,
			Owner:         sender,
			MonthlyRent:   new(big.Int),
			SharePrice:    new(big.Int),
			OwnerDeposit:  new(big.Int),
			TenantDeposit: new(big.Int),
		}
		return nil
	})
}

// StartFinancing opens fundraising for an idle asset.
func (c *SimulateClient) StartFinancing(ctx context.Context, id domain.AssetID, sharePrice *big.Int, rightsDurationMonths, fundraisingDays uint64, deposit *big.Int) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusIdle)
		if err != nil {
			return err
		}
		if sharePrice == nil || sharePrice.Sign() <= 0 || rightsDurationMonths == 0 || fundraisingDays == 0 {
			return errors.New("Invalid financing parameters")
		}
		minDeposit := new(big.Int).Mul(sharePrice, big.NewInt(30))
		if deposit == nil || deposit.Cmp(minDeposit) < 0 {
			return errors.New("Insufficient deposit")
		}

		rec.SharePrice = new(big.Int).Set(sharePrice)
		rec.RightsDurationMonths = rightsDurationMonths
		rec.FundraisingEnd = r.now().Add(time.Duration(fundraisingDays) * simulatedDay)
		rec.OwnerDeposit = new(big.Int).Set(deposit)
		rec.Status = domain.StatusFundraising
		return nil
	})
}

// UpdateAssetInfo replaces the descriptive fields of an owned asset.
func (c *SimulateClient) UpdateAssetInfo(ctx context.Context, id domain.AssetID, info domain.AssetInfo) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender)
		if err != nil {
			return err
		}
		rec.Info = info
		return nil
	})
}

// LockFinancing closes fundraising and starts the rights period.
func (c *SimulateClient) LockFinancing(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusFundraising)
		if err != nil {
			return err
		}
		rec.Status = domain.StatusLocked
		rec.RightsStart = r.now()
		return nil
	})
}

// BuyShares buys shares of a fundraising asset. Proceeds go to the owner.
func (c *SimulateClient) BuyShares(ctx context.Context, id domain.AssetID, shares uint64, payment *big.Int) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.liveAsset(id, domain.StatusFundraising)
		if err != nil {
			return err
		}
		if r.now().After(rec.FundraisingEnd) {
			return errors.New("Fundraising ended")
		}
		if shares == 0 || rec.TotalSharesSold+shares > domain.MaxShares {
			return errors.New("Not enough shares available")
		}
		if payment == nil || payment.Cmp(finance.SharesCost(shares, rec.SharePrice)) != 0 {
			return errors.New("Incorrect payment amount")
		}

		rec.TotalSharesSold += shares
		r.holdingLocked(id, sender).SharesOwned += shares
		r.creditLocked(rec.Owner, payment)
		return nil
	})
}

// ListForRent offers a locked asset to tenants.
func (c *SimulateClient) ListForRent(ctx context.Context, id domain.AssetID, monthlyRent *big.Int) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusLocked)
		if err != nil {
			return err
		}
		if monthlyRent == nil || monthlyRent.Sign() <= 0 {
			return errors.New("Invalid rent amount")
		}
		rec.MonthlyRent = new(big.Int).Set(monthlyRent)
		rec.Status = domain.StatusListedForRent
		return nil
	})
}

// RentAsset rents a listed asset. Prepaid rent is split among shareholders
// pro rata, the undistributed rest goes to the owner.
func (c *SimulateClient) RentAsset(ctx context.Context, id domain.AssetID, months uint64, payment *big.Int) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.liveAsset(id, domain.StatusListedForRent)
		if err != nil {
			return err
		}
		if rec.Owner == sender {
			return errors.New("Owner cannot rent")
		}
		if months == 0 {
			return errors.New("Invalid rent duration")
		}
		if payment == nil || payment.Cmp(finance.RentPayment(rec.MonthlyRent, months)) != 0 {
			return errors.New("Incorrect payment amount")
		}

		now := r.now()
		rec.Tenant = sender
		rec.TenantDeposit = finance.TenantDeposit(rec.MonthlyRent)
		rec.RentStart = now
		rec.RentEnd = now.Add(time.Duration(months) * simulatedMonth)
		rec.TerminationRequest = time.Time{}
		rec.Status = domain.StatusRented

		r.distributeRentLocked(rec, finance.TotalValuation(rec.MonthlyRent, months))
		return nil
	})
}

// RequestTermination lets the tenant ask to end the lease.
func (c *SimulateClient) RequestTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.liveAsset(id, domain.StatusRented)
		if err != nil {
			return err
		}
		if rec.Tenant != sender {
			return errors.New("Not tenant")
		}
		rec.TerminationRequest = r.now()
		rec.Status = domain.StatusSettling
		return nil
	})
}

// ProcessSettlement lets the owner settle a terminated lease, either
// returning the tenant deposit or keeping it.
func (c *SimulateClient) ProcessSettlement(ctx context.Context, id domain.AssetID, returnDeposit bool) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusSettling)
		if err != nil {
			return err
		}

		if returnDeposit {
			r.creditLocked(rec.Tenant, rec.TenantDeposit)
		} else {
			r.creditLocked(rec.Owner, rec.TenantDeposit)
		}

		rec.TenantDeposit = new(big.Int)
		rec.Tenant = common.Address{}
		rec.Status = domain.StatusLocked
		return nil
	})
}

// ForceTermination lets the owner end a lease whose term has passed.
func (c *SimulateClient) ForceTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusRented)
		if err != nil {
			return err
		}
		if !r.now().After(rec.RentEnd) {
			return errors.New("Rent period not over")
		}
		rec.TerminationRequest = r.now()
		rec.Status = domain.StatusSettling
		return nil
	})
}

// WithdrawEscrow releases the owner deposit once the lease is settling or
// the rights period is over.
func (c *SimulateClient) WithdrawEscrow(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender)
		if err != nil {
			return err
		}
		if rec.OwnerDeposit == nil || rec.OwnerDeposit.Sign() <= 0 {
			return errors.New("No deposit to withdraw")
		}

		rightsEnd := rec.RightsStart.Add(time.Duration(rec.RightsDurationMonths) * simulatedMonth)
		expired := !rec.RightsStart.IsZero() && r.now().After(rightsEnd)
		if rec.Status != domain.StatusSettling && !expired {
			return errors.New("Deposit is locked")
		}

		r.creditLocked(rec.Owner, rec.OwnerDeposit)
		rec.OwnerDeposit = new(big.Int)
		return nil
	})
}

// WithdrawBalance pays out amount from the sender's balance.
func (c *SimulateClient) WithdrawBalance(ctx context.Context, amount *big.Int) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		bal := r.balances[sender]
		if amount == nil || amount.Sign() <= 0 || bal == nil || bal.Cmp(amount) < 0 {
			return errors.New("Insufficient balance")
		}
		bal.Sub(bal, amount)
		return nil
	})
}

// DestroyAsset tombstones an idle asset.
func (c *SimulateClient) DestroyAsset(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.submit(ctx, func(r *SimulateRegistry, sender common.Address) error {
		rec, err := r.ownedAsset(id, sender, domain.StatusIdle)
		if err != nil {
			return err
		}
		rec.Owner = common.Address{}
		return nil
	})
}

type simulatedMutation func(r *SimulateRegistry, sender common.Address) error

func (c *SimulateClient) submit(ctx context.Context, apply simulatedMutation) (domain.Submission, error) {
	if c.account == (common.Address{}) {
		return nil, domain.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := c.registry
	r.mu.Lock()
	r.txSeq++
	r.submissions++
	txID := fmt.Sprintf("sim-%d", r.txSeq)
	r.mu.Unlock()

	return &simSubmission{registry: r, sender: c.account, txID: txID, apply: apply}, nil
}

type simSubmission struct {
	registry *SimulateRegistry
	sender   common.Address
	txID     string
	apply    simulatedMutation

	once sync.Once
	err  error
}

func (s *simSubmission) TxID() string { return s.txID }

// Wait applies the mutation exactly once. A rule violation reverts it.
func (s *simSubmission) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(domain.ErrMutationTimeout, err.Error())
	}

	s.once.Do(func() {
		s.err = s.registry.applyMutation(s.txID, s.sender, s.apply)
	})

	return s.err
}

func (r *SimulateRegistry) applyMutation(txID string, sender common.Address, apply simulatedMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// stage changes on a copy so a revert leaves no trace
	backup := r.exportLocked()
	if err := apply(r, sender); err != nil {
		if restoreErr := r.restoreLocked(backup); restoreErr != nil {
			r.logger.Error("failed to roll back simulated mutation", zap.Error(restoreErr))
		}
		r.logger.Debug("simulated mutation reverted", zap.String("tx", txID), zap.Error(err))
		return domain.NewMutationError(domain.ErrMutationRejected, err, 0)
	}

	if err := r.store.Save(r.exportLocked()); err != nil {
		r.logger.Warn("failed to persist simulated registry", zap.Error(err))
	}

	return nil
}

func (r *SimulateRegistry) liveAsset(id domain.AssetID, statuses ...domain.AssetStatus) (*domain.AssetRecord, error) {
	rec, ok := r.assets[id]
	if !ok || rec.IsTombstoned() {
		return nil, errors.New("Property does not exist")
	}
	if len(statuses) == 0 {
		return rec, nil
	}
	for _, s := range statuses {
		if rec.Status == s {
			return rec, nil
		}
	}
	return nil, errors.New("Invalid property status")
}

func (r *SimulateRegistry) ownedAsset(id domain.AssetID, sender common.Address, statuses ...domain.AssetStatus) (*domain.AssetRecord, error) {
	rec, err := r.liveAsset(id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != sender {
		return nil, errors.New("Not the landlord")
	}
	return r.liveAsset(id, statuses...)
}

func (r *SimulateRegistry) holdingLocked(id domain.AssetID, addr common.Address) *domain.Holding {
	byAddr, ok := r.holdings[id]
	if !ok {
		byAddr = make(map[common.Address]*domain.Holding)
		r.holdings[id] = byAddr
	}
	h, ok := byAddr[addr]
	if !ok {
		empty := domain.EmptyHolding()
		h = &empty
		byAddr[addr] = h
	}
	return h
}

func (r *SimulateRegistry) creditLocked(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	bal, ok := r.balances[addr]
	if !ok {
		bal = new(big.Int)
		r.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (r *SimulateRegistry) distributeRentLocked(rec *domain.AssetRecord, total *big.Int) {
	rest := new(big.Int).Set(total)
	for addr, h := range r.holdings[rec.ID] {
		if h.SharesOwned == 0 {
			continue
		}
		share := finance.ProRataMonthlyIncome(total, h.SharesOwned)
		r.creditLocked(addr, share)
		h.RentWithdrawn.Add(h.RentWithdrawn, share)
		rest.Sub(rest, share)
	}
	r.creditLocked(rec.Owner, rest)
}

func (r *SimulateRegistry) exportLocked() simstate.State {
	state := simstate.State{
		NextID:   r.nextID,
		Assets:   make([]simstate.StoredAsset, 0, len(r.order)),
		Balances: make(map[string]string, len(r.balances)),
	}

	for _, id := range r.order {
		state.Assets = append(state.Assets, simstate.NewStoredAsset(*r.assets[id]))
	}

	for id, byAddr := range r.holdings {
		for addr, h := range byAddr {
			state.Holdings = append(state.Holdings, simstate.StoredHolding{
				AssetID:       uint64(id),
				Address:       addr.Hex(),
				Shares:        h.SharesOwned,
				RentWithdrawn: simstate.EncodeAmount(h.RentWithdrawn),
			})
		}
	}
	sort.Slice(state.Holdings, func(i, j int) bool {
		if state.Holdings[i].AssetID != state.Holdings[j].AssetID {
			return state.Holdings[i].AssetID < state.Holdings[j].AssetID
		}
		return state.Holdings[i].Address < state.Holdings[j].Address
	})

	for addr, bal := range r.balances {
		state.Balances[addr.Hex()] = bal.String()
	}

	return state
}

func (r *SimulateRegistry) restore(state simstate.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restoreLocked(state)
}

func (r *SimulateRegistry) restoreLocked(state simstate.State) error {
	assets := make(map[domain.AssetID]*domain.AssetRecord, len(state.Assets))
	order := make([]domain.AssetID, 0, len(state.Assets))
	for _, sa := range state.Assets {
		rec, err := sa.ToRecord()
		if err != nil {
			return err
		}
		assets[rec.ID] = &rec
		order = append(order, rec.ID)
	}

	holdings := make(map[domain.AssetID]map[common.Address]*domain.Holding)
	for _, sh := range state.Holdings {
		withdrawn, err := simstate.DecodeAmount(sh.RentWithdrawn)
		if err != nil {
			return errors.Wrapf(err, "decode holding of %s in asset %d", sh.Address, sh.AssetID)
		}
		id := domain.AssetID(sh.AssetID)
		if holdings[id] == nil {
			holdings[id] = make(map[common.Address]*domain.Holding)
		}
		holdings[id][common.HexToAddress(sh.Address)] = &domain.Holding{SharesOwned: sh.Shares, RentWithdrawn: withdrawn}
	}

	balances := make(map[common.Address]*big.Int, len(state.Balances))
	for addr, raw := range state.Balances {
		bal, err := simstate.DecodeAmount(raw)
		if err != nil {
			return errors.Wrapf(err, "decode balance of %s", addr)
		}
		balances[common.HexToAddress(addr)] = bal
	}

	r.nextID = state.NextID
	r.order = order
	r.assets = assets
	r.holdings = holdings
	r.balances = balances
	return nil
}

func cloneRecord(rec domain.AssetRecord) domain.AssetRecord {
	rec.MonthlyRent = cloneAmount(rec.MonthlyRent)
	rec.SharePrice = cloneAmount(rec.SharePrice)
	rec.OwnerDeposit = cloneAmount(rec.OwnerDeposit)
	rec.TenantDeposit = cloneAmount(rec.TenantDeposit)
	return rec
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
