package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/estate/internal/domain"
)

const propertyFieldCount = 19

// EVMBackend is the JSON-RPC surface the registry client needs.
type EVMBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EVMClient reads and mutates the property registry contract over JSON-RPC.
// Every method is a single round trip: no caching, no retries.
type EVMClient struct {
	backend  EVMBackend
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	account  common.Address
	limiter  *rate.Limiter
}

// EVMOption configures an EVMClient.
type EVMOption func(*EVMClient)

// WithViewAccount sets the account used for reads when no signing key is configured.
func WithViewAccount(addr common.Address) EVMOption {
	return func(c *EVMClient) {
		if c.key == nil {
			c.account = addr
		}
	}
}

// WithReadLimit throttles read calls to rps with the given burst. rps <= 0 disables throttling.
func WithReadLimit(rps float64, burst int) EVMOption {
	return func(c *EVMClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// DialEVM connects to rpcURL and binds the registry at contractAddr.
// privateKeyHex may be empty for a read-only client.
func DialEVM(ctx context.Context, rpcURL string, contractAddr common.Address, privateKeyHex string, opts ...EVMOption) (*EVMClient, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, errors.Wrap(err, "fetch chain id")
	}

	var key *ecdsa.PrivateKey
	if privateKeyHex != "" {
		key, err = ParsePrivateKey(privateKeyHex)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	return NewEVMClient(backend, contractAddr, chainID, key, opts...)
}

// NewEVMClient binds the registry at contractAddr on an existing backend.
func NewEVMClient(backend EVMBackend, contractAddr common.Address, chainID *big.Int, key *ecdsa.PrivateKey, opts ...EVMOption) (*EVMClient, error) {
	if backend == nil {
		return nil, fmt.Errorf("evm backend is nil")
	}
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse registry abi")
	}

	c := &EVMClient{
		backend:  backend,
		contract: bind.NewBoundContract(contractAddr, parsed, backend, backend, backend),
		address:  contractAddr,
		chainID:  chainID,
		key:      key,
	}
	if key != nil {
		c.account = crypto.PubkeyToAddress(key.PublicKey)
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ParsePrivateKey decodes a hex private key with or without the 0x prefix.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key := strings.TrimSpace(privateKeyHex)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	return privateKey, nil
}

// Account returns the connected account, or the zero address when none is set.
func (c *EVMClient) Account() common.Address { return c.account }

// ContractAddress returns the registry address.
func (c *EVMClient) ContractAddress() common.Address { return c.address }

// AssetIDs enumerates every asset id known to the registry in registry order.
func (c *EVMClient) AssetIDs(ctx context.Context) ([]domain.AssetID, error) {
	out, err := c.call(ctx, "getAllPropertyIds")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errors.Errorf("getAllPropertyIds: expected 1 output, got %d", len(out))
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, errors.Errorf("getAllPropertyIds: unexpected output type %T", out[0])
	}

	ids := make([]domain.AssetID, 0, len(raw))
	for _, v := range raw {
		if v == nil || !v.IsUint64() {
			return nil, errors.Errorf("getAllPropertyIds: id %v out of range", v)
		}
		ids = append(ids, domain.AssetID(v.Uint64()))
	}
	return ids, nil
}

// Asset reads one asset record. Destroyed assets come back tombstoned.
func (c *EVMClient) Asset(ctx context.Context, id domain.AssetID) (domain.AssetRecord, error) {
	out, err := c.call(ctx, "properties", idArg(id))
	if err != nil {
		return domain.AssetRecord{}, err
	}
	return decodeAsset(id, out)
}

// Holding reads the shares and withdrawn rent of addr in asset id.
func (c *EVMClient) Holding(ctx context.Context, id domain.AssetID, addr common.Address) (domain.Holding, error) {
	out, err := c.call(ctx, "userInfo", idArg(id), addr)
	if err != nil {
		return domain.Holding{}, err
	}
	return decodeHolding(out)
}

// Balance reads the withdrawable registry balance of addr.
func (c *EVMClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "balances", addr)
	if err != nil {
		return nil, err
	}
	d := fieldDecoder{method: "balances", out: out}
	if err := d.expect(1); err != nil {
		return nil, err
	}
	bal := d.bigInt(0)
	return bal, d.err
}

// CreateAsset lists a new asset owned by the connected account.
func (c *EVMClient) CreateAsset(ctx context.Context, info domain.AssetInfo) (domain.Submission, error) {
	return c.transact(ctx, nil, "listProperty",
		info.Name, info.PhysicalAddress, new(big.Int).SetUint64(info.Area), info.Category, info.OwnerPhone)
}

// StartFinancing opens fundraising for an asset, escrowing deposit.
func (c *EVMClient) StartFinancing(ctx context.Context, id domain.AssetID, sharePrice *big.Int, rightsDurationMonths, fundraisingDays uint64, deposit *big.Int) (domain.Submission, error) {
	return c.transact(ctx, deposit, "startInvestment",
		idArg(id), sharePrice, new(big.Int).SetUint64(rightsDurationMonths), new(big.Int).SetUint64(fundraisingDays))
}

// UpdateAssetInfo replaces the descriptive fields of an asset.
func (c *EVMClient) UpdateAssetInfo(ctx context.Context, id domain.AssetID, info domain.AssetInfo) (domain.Submission, error) {
	return c.transact(ctx, nil, "updatePropertyBasicInfo",
		idArg(id), info.Name, info.PhysicalAddress, new(big.Int).SetUint64(info.Area), info.Category, info.OwnerPhone)
}

// LockFinancing closes fundraising.
func (c *EVMClient) LockFinancing(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.transact(ctx, nil, "finishInvestment", idArg(id))
}

// BuyShares buys shares of an asset paying payment.
func (c *EVMClient) BuyShares(ctx context.Context, id domain.AssetID, shares uint64, payment *big.Int) (domain.Submission, error) {
	return c.transact(ctx, payment, "buyShares", idArg(id), new(big.Int).SetUint64(shares))
}

// ListForRent offers a locked asset for rent.
func (c *EVMClient) ListForRent(ctx context.Context, id domain.AssetID, monthlyRent *big.Int) (domain.Submission, error) {
	return c.transact(ctx, nil, "listForRent", idArg(id), monthlyRent)
}

// RentAsset rents an asset for months paying payment.
func (c *EVMClient) RentAsset(ctx context.Context, id domain.AssetID, months uint64, payment *big.Int) (domain.Submission, error) {
	return c.transact(ctx, payment, "rentProperty", idArg(id), new(big.Int).SetUint64(months))
}

// RequestTermination asks to end the current lease.
func (c *EVMClient) RequestTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.transact(ctx, nil, "requestTermination", idArg(id))
}

// ProcessSettlement settles a terminated lease.
func (c *EVMClient) ProcessSettlement(ctx context.Context, id domain.AssetID, returnDeposit bool) (domain.Submission, error) {
	return c.transact(ctx, nil, "processSettlement", idArg(id), returnDeposit)
}

// ForceTermination ends a lease on behalf of the owner.
func (c *EVMClient) ForceTermination(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.transact(ctx, nil, "forceTermination", idArg(id))
}

// WithdrawEscrow releases the escrow deposits of an asset.
func (c *EVMClient) WithdrawEscrow(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.transact(ctx, nil, "withdrawDeposits", idArg(id))
}

// WithdrawBalance withdraws amount from the registry balance.
func (c *EVMClient) WithdrawBalance(ctx context.Context, amount *big.Int) (domain.Submission, error) {
	return c.transact(ctx, nil, "withdraw", amount)
}

// DestroyAsset burns an idle asset.
func (c *EVMClient) DestroyAsset(ctx context.Context, id domain.AssetID) (domain.Submission, error) {
	return c.transact(ctx, nil, "burnProperty", idArg(id))
}

func (c *EVMClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "read limiter")
		}
	}

	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return out, nil
}

func (c *EVMClient) transact(ctx context.Context, value *big.Int, method string, args ...any) (domain.Submission, error) {
	if c.key == nil {
		return nil, domain.ErrNotConnected
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "build transactor")
	}
	opts.Context = ctx
	if value != nil && value.Sign() > 0 {
		opts.Value = value
	}

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, domain.NewMutationError(domain.ErrMutationRejected, errors.New(revertReason(err)), 0)
	}

	return &evmSubmission{tx: tx, backend: c.backend}, nil
}

type evmSubmission struct {
	tx      *types.Transaction
	backend bind.DeployBackend
}

func (s *evmSubmission) TxID() string {
	return s.tx.Hash().Hex()
}

// Wait blocks until the transaction is mined and checks its receipt.
func (s *evmSubmission) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, s.backend, s.tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(domain.ErrMutationTimeout, "transaction %s", s.TxID())
		}
		return errors.Wrapf(err, "wait for transaction %s", s.TxID())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		cause := errors.Errorf("transaction %s reverted in block %s", s.TxID(), receipt.BlockNumber)
		return domain.NewMutationError(domain.ErrMutationRejected, cause, 0)
	}
	return nil
}

// revertReason extracts the human readable revert string from a JSON-RPC error.
func revertReason(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return strings.TrimPrefix(err.Error(), "execution reverted: ")
}

func idArg(id domain.AssetID) *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

func decodeAsset(id domain.AssetID, out []any) (domain.AssetRecord, error) {
	d := fieldDecoder{method: "properties", out: out}
	if err := d.expect(propertyFieldCount); err != nil {
		return domain.AssetRecord{}, err
	}

	rec := domain.AssetRecord{
		ID: id,
		Info: domain.AssetInfo{
			Name:            d.str(0),
			PhysicalAddress: d.str(1),
			Area:            d.u64(2),
			Category:        d.str(3),
			OwnerPhone:      d.str(4),
		},
		Owner:                d.addr(5),
		SharePrice:           d.bigInt(7),
		FundraisingEnd:       d.unix(8),
		OwnerDeposit:         d.bigInt(9),
		TotalSharesSold:      d.u64(10),
		MonthlyRent:          d.bigInt(11),
		TenantDeposit:        d.bigInt(12),
		RentStart:            d.unix(13),
		RentEnd:              d.unix(14),
		Tenant:               d.addr(15),
		RightsDurationMonths: d.u64(16),
		RightsStart:          d.unix(17),
		TerminationRequest:   d.unix(18),
	}
	rawStatus := d.u8(6)
	if d.err != nil {
		return domain.AssetRecord{}, d.err
	}

	status, err := domain.ParseAssetStatus(rawStatus)
	if err != nil {
		return domain.AssetRecord{}, errors.Wrapf(err, "asset %s", id)
	}
	rec.Status = status

	return rec, nil
}

func decodeHolding(out []any) (domain.Holding, error) {
	d := fieldDecoder{method: "userInfo", out: out}
	if err := d.expect(2); err != nil {
		return domain.Holding{}, err
	}
	h := domain.Holding{
		SharesOwned:   d.u64(0),
		RentWithdrawn: d.bigInt(1),
	}
	return h, d.err
}

// fieldDecoder converts loosely typed ABI outputs into strict Go values.
// The first failure sticks in err and later accessors return zero values.
type fieldDecoder struct {
	method string
	out    []any
	err    error
}

func (d *fieldDecoder) expect(n int) error {
	if len(d.out) != n {
		d.err = errors.Errorf("%s: expected %d outputs, got %d", d.method, n, len(d.out))
	}
	return d.err
}

func (d *fieldDecoder) fail(i int, want string) {
	if d.err == nil {
		d.err = errors.Errorf("%s: output %d is %T, want %s", d.method, i, d.out[i], want)
	}
}

func (d *fieldDecoder) str(i int) string {
	if d.err != nil {
		return ""
	}
	v, ok := d.out[i].(string)
	if !ok {
		d.fail(i, "string")
	}
	return v
}

func (d *fieldDecoder) addr(i int) common.Address {
	if d.err != nil {
		return common.Address{}
	}
	v, ok := d.out[i].(common.Address)
	if !ok {
		d.fail(i, "address")
	}
	return v
}

func (d *fieldDecoder) bigInt(i int) *big.Int {
	if d.err != nil {
		return nil
	}
	v, ok := d.out[i].(*big.Int)
	if !ok || v == nil {
		d.fail(i, "uint256")
		return nil
	}
	return new(big.Int).Set(v)
}

func (d *fieldDecoder) u64(i int) uint64 {
	v := d.bigInt(i)
	if d.err != nil {
		return 0
	}
	if !v.IsUint64() {
		d.err = errors.Errorf("%s: output %d value %s overflows uint64", d.method, i, v)
		return 0
	}
	return v.Uint64()
}

func (d *fieldDecoder) u8(i int) uint8 {
	if d.err != nil {
		return 0
	}
	v, ok := d.out[i].(uint8)
	if !ok {
		d.fail(i, "uint8")
	}
	return v
}

func (d *fieldDecoder) unix(i int) time.Time {
	v := d.u64(i)
	if d.err != nil || v == 0 {
		return time.Time{}
	}
	return time.Unix(int64(v), 0).UTC()
}
