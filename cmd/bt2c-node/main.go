// Command bt2c-node runs a single BT2C validator node: it assembles the
// core collaborators (Mempool, ValidatorSet, ValidatorSelector, Slasher,
// RewardEngine, ChainManager) behind concrete Store/Transport adapters and
// drives them from a cooperative scheduler, per spec.md section 5.
//
// Flag/config wiring mirrors the teacher's cmd/quantum-node/main.go: cobra
// persistent flags bound into viper, a Run function that assembles the
// node and starts it in the background, then blocks on an interrupt
// signal before a graceful Stop.
package main

import (
	"crypto/rsa"
	"encoding/hex"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sa2shinakamo2/bt2c-sub002/core/chain"
	"github.com/sa2shinakamo2/bt2c-sub002/core/config"
	corecrypto "github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
	"github.com/sa2shinakamo2/bt2c-sub002/core/mempool"
	"github.com/sa2shinakamo2/bt2c-sub002/core/reward"
	"github.com/sa2shinakamo2/bt2c-sub002/core/selector"
	"github.com/sa2shinakamo2/bt2c-sub002/core/slasher"
	"github.com/sa2shinakamo2/bt2c-sub002/core/transport"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
	"github.com/sa2shinakamo2/bt2c-sub002/core/validator"
	"github.com/sa2shinakamo2/bt2c-sub002/core/wallet"
	"github.com/sa2shinakamo2/bt2c-sub002/internal/keydir"
	"github.com/sa2shinakamo2/bt2c-sub002/internal/logging"
	"github.com/sa2shinakamo2/bt2c-sub002/internal/metrics"
	"github.com/sa2shinakamo2/bt2c-sub002/internal/p2p"
	"github.com/sa2shinakamo2/bt2c-sub002/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bt2c-node",
	Short: "BT2C proof-of-stake ledger node",
	Run:   runNode,
}

var (
	networkFlag string
	dataDir     string
	listenAddr  string
	bootstrap   []string
	mnemonic    string
	debug       bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&networkFlag, "network", "testnet", "network type: mainnet or testnet")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", ":26656", "P2P listen address")
	rootCmd.PersistentFlags().StringArrayVar(&bootstrap, "bootstrap", nil, "bootstrap peer addresses")
	rootCmd.PersistentFlags().StringVar(&mnemonic, "mnemonic", "", "validator BIP39 mnemonic (generated if empty)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

// node bundles every collaborator the scheduler drives.
type node struct {
	cfg        config.Config
	mempool    *mempool.Mempool
	validators *validator.Set
	selector   *selector.Selector
	slasher    *slasher.Slasher
	rewards    *reward.Engine
	chain      *chain.Manager
	wallet     *wallet.Wallet
	keys       *keydir.Directory

	store     *storage.LevelDBStore
	transport *p2p.WebsocketTransport
	metrics   *metrics.Collectors
	log       *logrus.Logger

	shutdown chan struct{}
	done     chan struct{}
}

func runNode(cmd *cobra.Command, args []string) {
	nt := config.Testnet
	if networkFlag == "mainnet" {
		nt = config.Mainnet
	}
	cfg := config.Default(nt)

	logger := logging.New(string(nt), debug)
	logger.Infof("starting bt2c-node %s (%s), network=%s", version, commit, nt)

	if mnemonic == "" {
		_, generated, err := wallet.Generate()
		if err != nil {
			logger.Fatalf("generate wallet: %v", err)
		}
		logger.Warnf("no --mnemonic supplied, generated one-off validator mnemonic: %s", generated)
		mnemonic = generated
	}
	w, err := wallet.NewFromMnemonic(mnemonic, "")
	if err != nil {
		logger.Fatalf("derive wallet: %v", err)
	}

	store, err := storage.Open(filepath.Join(dataDir, "bt2c.db"))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	genesis := buildGenesisBlock(nt)
	rewardEngine := reward.New(cfg)
	chainMgr, err := chain.New(genesis, cfg.FinalityConfirmations, cfg.MaxBlockBytes, cfg.MaxTxPerBlock, rewardEngine)
	if err != nil {
		logger.Fatalf("init chain manager: %v", err)
	}

	n := &node{
		cfg:        cfg,
		mempool:    mempool.New(cfg),
		validators: validator.New(cfg, time.Unix(genesis.Timestamp, 0)),
		selector:   selector.New(cfg),
		slasher:    slasher.New(),
		rewards:    rewardEngine,
		chain:      chainMgr,
		wallet:     w,
		keys:       keydir.New(store),
		store:      store,
		transport:  p2p.New(),
		metrics:    metrics.New(),
		log:        logger,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	if err := n.validators.Register(w.Address(), cfg.MinStake, time.Now()); err != nil {
		logger.Fatalf("register validator: %v", err)
	}
	if err := n.keys.Register(w.Address(), w.PublicKey()); err != nil {
		logger.Fatalf("register own public key: %v", err)
	}
	logging.WithValidator(logger, string(w.Address())).Info("validator registered")

	if err := n.transport.Start(listenAddr, bootstrap); err != nil {
		logger.Fatalf("start transport: %v", err)
	}
	n.transport.Subscribe(n.onMessage)
	logger.Infof("p2p listening on %s", listenAddr)

	go n.run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down bt2c-node")
	close(n.shutdown)
	<-n.done

	_ = n.transport.Close()
	_ = n.store.Close()
	logger.Infof("bt2c-node stopped")
}

// onMessage is the single core-side callback spec.md section 6 names for
// Transport deliveries.
func (n *node) onMessage(from transport.PeerID, msg transport.Message) error {
	switch msg.Type {
	case transport.MsgNewTx:
		if msg.Tx == nil {
			return nil
		}
		n.learnKeyFromTx(msg.Tx)
		if err := n.mempool.Add(msg.Tx, n.chain.Balance(msg.Tx.Sender), n.chain.LastAcceptedNonce(msg.Tx.Sender), time.Now()); err != nil {
			n.log.Debugf("reject gossiped tx %s: %v", msg.Tx.Hash(), err)
		}
	case transport.MsgNewBlock:
		n.handleInboundBlock(msg.Block)
	case transport.MsgRequestBlocks:
		blocks := n.chain.Blocks()
		lo, hi := msg.From, msg.To
		if lo == 0 {
			lo = 1
		}
		if hi == 0 || hi > uint64(len(blocks)) {
			hi = uint64(len(blocks))
		}
		if lo > hi {
			return nil
		}
		return n.transport.SendTo(from, transport.Message{Type: transport.MsgBlocksResponse, Blocks: blocks[lo-1 : hi]})
	case transport.MsgBlocksResponse:
		for _, b := range msg.Blocks {
			n.handleInboundBlock(b)
		}
	}
	return nil
}

// handleInboundBlock validates and applies a block delivered by a peer,
// extending the local tip directly, resolving a same-height competing
// block through a rollback-then-reapply reorg, or requesting the gap when
// the peer is ahead, per spec.md section 4.5/section 6.
func (n *node) handleInboundBlock(block *types.Block) {
	if block == nil {
		return
	}
	tip := n.chain.Tip()
	if tip == nil {
		return
	}

	switch {
	case block.Height == tip.Height+1 && block.PreviousHash == tip.Hash():
		n.appendInboundBlock(block)

	case block.Height == tip.Height && block.PreviousHash == tip.PreviousHash:
		if _, err := n.chain.Reorg(nil, tip.Height-1, n.mempool); err != nil {
			n.log.Warnf("roll back to height %d for fork resolution: %v", tip.Height-1, err)
			return
		}
		if err := n.chain.Append(block, n.publicKeyLookup, n.rewards.BlockReward(block.Height)); err != nil {
			n.log.Warnf("append competing block %d: %v", block.Height, err)
			if _, rerr := n.chain.Reorg([]*types.Block{tip}, tip.Height-1, nil); rerr != nil {
				n.log.Errorf("restore original tip after failed reorg: %v", rerr)
			}
			return
		}
		n.metrics.ReorgDepth.Observe(1)
		logging.WithBlock(n.log, block.Height, block.Hash().String()).Info("reorged onto competing block")
		n.onBlockAppended(block)

	case block.Height > tip.Height+1:
		_ = n.transport.Broadcast(transport.Message{Type: transport.MsgRequestBlocks, From: tip.Height + 1, To: block.Height})

	default:
		// Stale or already-known block: ignore.
	}
}

// appendInboundBlock applies a block that directly extends the local tip.
func (n *node) appendInboundBlock(block *types.Block) {
	subsidy := n.rewards.BlockReward(block.Height)
	if err := n.chain.Append(block, n.publicKeyLookup, subsidy); err != nil {
		n.log.Warnf("append inbound block %d: %v", block.Height, err)
		return
	}
	logging.WithBlock(n.log, block.Height, block.Hash().String()).Info("appended inbound block")
	n.onBlockAppended(block)
	_ = n.transport.Broadcast(transport.Message{Type: transport.MsgNewBlock, Block: block})
}

// onBlockAppended runs the post-append pipeline common to self-produced and
// peer-relayed blocks: feed the Slasher's double-sign and Byzantine-behavior
// detectors, apply any resulting verdict, and update validator/metrics
// bookkeeping. Matches spec.md section 2's "ChainManager validates and
// appends -> Slasher scans for evidence -> RewardEngine credits" flow.
func (n *node) onBlockAppended(block *types.Block) {
	n.metrics.BlockHeight.Set(float64(block.Height))
	n.metrics.TransactionCount.Add(float64(len(block.Transactions) - 1))

	now := time.Now()
	if verdict, found := n.slasher.ObserveBlock(block.Validator, block.Height, block.Hash(), now); found {
		n.applySlashVerdict(verdict, now)
	}
	if verdict, found := n.slasher.RecordBlockValidity(block.Validator, block.Height, block.Hash(), true, now); found {
		n.applySlashVerdict(verdict, now)
	}

	reward := block.Transactions[0].Amount
	_ = n.validators.UpdateMetrics(block.Validator, reward, 0, true, len(block.Transactions)-1, now)
}

// applySlashVerdict applies a Slasher verdict to the validator set and
// records the resulting metrics/log line.
func (n *node) applySlashVerdict(v *slasher.Verdict, now time.Time) {
	status, err := n.validators.ApplySlash(v.Evidence.Validator, v.SlashFraction, v.Jail, now)
	if err != nil {
		n.log.Warnf("apply slash verdict for %s: %v", v.Evidence.Validator, err)
		return
	}
	n.metrics.SlashingEvents.Inc()
	logging.WithValidator(n.log, string(v.Evidence.Validator)).
		WithField("evidence", v.Evidence.Kind).Warnf("slashed validator, new status=%s", status)

	switch status {
	case validator.StatusJailed:
		n.metrics.JailEvents.Inc()
		n.slasher.Forget(v.Evidence.Validator)
	case validator.StatusTombstoned:
		n.slasher.Forget(v.Evidence.Validator)
	}
}

// learnKeyFromTx registers a peer validator's public key from a gossiped
// STAKE transaction's pubkey_der payload field, the in-band registration
// mechanism by which this node learns keys it did not generate itself:
// BT2C addresses are one-way hashes of a DER-encoded public key, so a
// signature cannot be verified until the key has been observed this way.
func (n *node) learnKeyFromTx(tx *types.Transaction) {
	if tx == nil || tx.Type != types.TxStake {
		return
	}
	hexDER, ok := tx.Payload["pubkey_der"]
	if !ok {
		return
	}
	der, err := hex.DecodeString(hexDER)
	if err != nil {
		return
	}
	if types.NewAddress(der) != tx.Sender {
		return
	}
	pub, err := corecrypto.PublicKeyFromDER(der)
	if err != nil {
		return
	}
	if err := n.keys.Register(tx.Sender, pub); err != nil {
		n.log.Debugf("register learned key for %s: %v", tx.Sender, err)
	}
}

// run is the cooperative scheduler loop from spec.md section 5: block
// production, exit-queue processing, and mempool pruning all run as
// cooperative tasks on explicit tickers, honoring shutdown within one tick.
func (n *node) run() {
	defer close(n.done)

	blockTicker := time.NewTicker(time.Duration(n.cfg.BlockTimeSec) * time.Second)
	defer blockTicker.Stop()
	pruneTicker := time.NewTicker(1 * time.Second)
	defer pruneTicker.Stop()
	exitTicker := time.NewTicker(10 * time.Second)
	defer exitTicker.Stop()

	for {
		select {
		case <-n.shutdown:
			return
		case <-blockTicker.C:
			n.produceBlock()
		case <-pruneTicker.C:
			n.mempool.EvictExpired(time.Now())
			n.metrics.MempoolSize.Set(float64(n.mempool.Len()))
		case <-exitTicker.C:
			n.validators.ProcessExitQueue(10)
		}
	}
}

// produceBlock drains the mempool and appends a new block when this node
// is the selected proposer for the upcoming height.
func (n *node) produceBlock() {
	tip := n.chain.Tip()
	if tip == nil {
		return
	}

	active := n.validators.Active()
	if len(active) == 0 {
		return
	}

	prev := selector.PreviousBlock{
		Hash:      tip.Hash(),
		Height:    tip.Height,
		TxHash:    tip.MerkleRoot,
		Validator: tip.Validator,
		Timestamp: tip.Timestamp,
	}
	proposer, err := n.selector.Select(active, prev, time.Now().UnixMilli())
	if err != nil || proposer != n.wallet.Address() {
		return
	}

	height := tip.Height + 1
	txs := n.mempool.Drain(n.cfg.MaxTxPerBlock-1, n.cfg.MaxBlockBytes)

	var fees types.Amount
	for _, tx := range txs {
		fees = fees.Add(tx.Fee)
	}
	subsidy := n.rewards.BlockReward(height)

	coinbase := types.NewTransaction(
		types.SystemAddress, n.wallet.Address(), subsidy.Add(fees), types.ZeroAmount,
		0, time.Now().Unix(), types.TxReward, nil,
	)
	all := append([]*types.Transaction{coinbase}, txs...)

	block := types.NewBlock(height, tip.Hash(), time.Now().Unix(), n.wallet.Address(), 0, all)
	if err := n.wallet.SignBlock(block); err != nil {
		n.log.Warnf("sign block %d: %v", height, err)
		return
	}

	if err := n.chain.Append(block, n.publicKeyLookup, subsidy); err != nil {
		n.log.Warnf("append block %d: %v", height, err)
		return
	}
	logging.WithBlock(n.log, block.Height, block.Hash().String()).Info("appended block")

	n.onBlockAppended(block)

	_ = n.transport.Broadcast(transport.Message{Type: transport.MsgNewBlock, Block: block})
}

// publicKeyLookup resolves a validator/sender address to its RSA public
// key through the node's Store-backed key directory, populated by the
// node's own wallet key at startup and by learnKeyFromTx as peer STAKE
// transactions are observed.
func (n *node) publicKeyLookup(addr types.Address) (*rsa.PublicKey, bool) {
	return n.keys.Lookup(addr)
}

func buildGenesisBlock(nt config.NetworkType) *types.Block {
	genesisMsg := map[string]string{"message": "BT2C genesis block"}
	ts := genesisTimestamp(nt)
	coinbase := types.NewTransaction(
		types.GenesisSystemAddress, types.GenesisSystemAddress,
		types.ZeroAmount, types.ZeroAmount, 0, ts, types.TxReward, genesisMsg,
	)
	var zero types.Hash
	return types.NewBlock(1, zero, ts, types.SystemAddress, 0, []*types.Transaction{coinbase})
}

func genesisTimestamp(nt config.NetworkType) int64 {
	if nt == config.Mainnet {
		return 1700000000
	}
	return 1700000001
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
