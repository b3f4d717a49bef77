package infra

import (
	"bufio"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	accountFilePath     = "ACCOUNTS.txt"
	transactionFilePath = "TRANSACTIONS.txt"
)

var (
	chs = []rune("qwertyuiopasdfghjklzxcvbnmQWERTYUIOPASDFGHJKLZXCVBNM1234567890")
)

type WorkloadGenerator struct {
	rnd        *rand.Rand
	ccArgsList [][]string
	accounts   []string
}

// generateCCArgsList returns the function name followed by its arguments for each of the
// TxNum transactions
func generateCCArgsList() ([][]string, error) {
	wg, err := NewWorkloadGenerator()
	if err != nil {
		return nil, err
	}

	for i := 0; i < config.TxNum; i++ {
		wg.ccArgsList[i] = wg.generateCCArgs()
	}

	if err := wg.writeArgsToFile(); err != nil {
		return nil, err
	}
	if config.TxType == "put" {
		if err := wg.writeAccountsToFile(); err != nil {
			return nil, err
		}
	}

	return wg.ccArgsList, nil
}

func newRand() *rand.Rand {
	if config.Seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(config.Seed)))
}

func NewWorkloadGenerator() (*WorkloadGenerator, error) {
	wg := &WorkloadGenerator{
		rnd:        newRand(),
		ccArgsList: make([][]string, config.TxNum),
	}

	if config.TxType == "conflict" {
		if err := wg.loadAccountsFromFile(); err != nil {
			return nil, err
		}
	}

	return wg, nil
}

func (wg *WorkloadGenerator) loadAccountsFromFile() error {
	af, err := os.Open(accountFilePath)
	if err != nil {
		return errors.Wrapf(err, "fail to open account file %s", accountFilePath)
	}
	defer af.Close()

	input := bufio.NewScanner(af)
	for input.Scan() {
		if accountID := strings.TrimSpace(input.Text()); accountID != "" {
			wg.accounts = append(wg.accounts, accountID)
		}
	}
	if err := input.Err(); err != nil {
		return errors.Wrapf(err, "fail to read account file %s", accountFilePath)
	}

	hot := wg.hotAccountNumber()
	if len(wg.accounts) < 2 || hot == 0 || hot == len(wg.accounts) {
		return errors.Errorf("%d accounts in %s cannot be split into hot and cold accounts with ratio %f",
			len(wg.accounts), accountFilePath, config.HotAccountRatio)
	}

	logger.Infof("Load %d accounts from %s", len(wg.accounts), accountFilePath)
	return nil
}

func (wg *WorkloadGenerator) generateCCArgs() []string {
	switch config.TxType {
	case "put":
		return wg.generateCCArgsPut()
	case "conflict":
		return wg.generateCCArgsConflict()
	default:
		return append([]string(nil), config.Args...)
	}
}

func (wg *WorkloadGenerator) generateCCArgsPut() []string {
	id := config.Session + "_" + wg.getName(32) // a random customer scoped to this session

	return []string{
		"CreateAccount",   // function name
		id,                // customer id
		id,                // customer name
		strconv.Itoa(1e9), // savings balance
		strconv.Itoa(1e9), // checking balance
	}
}

func (wg *WorkloadGenerator) getName(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = chs[wg.rnd.Intn(len(chs))]
	}
	return string(b)
}

func (wg *WorkloadGenerator) generateCCArgsConflict() []string {
	senderName, receiverName := wg.selectTwoDifferentAccounts()

	return []string{
		"SendPayment", // function name
		senderName,
		receiverName,
		"1", // amount
	}
}

func (wg *WorkloadGenerator) selectTwoDifferentAccounts() (string, string) {
	senderName := wg.selectAccount()
	receiverName := wg.selectAccount()
	for senderName == receiverName {
		receiverName = wg.selectAccount()
	}

	return senderName, receiverName
}

func (wg *WorkloadGenerator) selectAccount() string {
	if wg.rnd.Float64() < config.ConflictRatio {
		return wg.selectHotAccount()
	}
	return wg.selectColdAccount()
}

func (wg *WorkloadGenerator) hotAccountNumber() int {
	return int(config.HotAccountRatio * float64(len(wg.accounts)))
}

func (wg *WorkloadGenerator) selectHotAccount() string {
	return wg.accounts[wg.rnd.Intn(wg.hotAccountNumber())]
}

func (wg *WorkloadGenerator) selectColdAccount() string {
	hot := wg.hotAccountNumber()
	return wg.accounts[wg.rnd.Intn(len(wg.accounts)-hot)+hot]
}

func (wg *WorkloadGenerator) writeArgsToFile() error {
	tf, err := os.Create(transactionFilePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", transactionFilePath)
	}
	defer tf.Close()

	w := bufio.NewWriter(tf)
	for i, args := range wg.ccArgsList {
		w.WriteString(strconv.Itoa(i) + " " + strings.Join(args, " ") + "\n")
	}
	return errors.Wrapf(w.Flush(), "failed to write file %s", transactionFilePath)
}

func (wg *WorkloadGenerator) writeAccountsToFile() error {
	af, err := os.Create(accountFilePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", accountFilePath)
	}
	defer af.Close()

	w := bufio.NewWriter(af)
	for _, args := range wg.ccArgsList {
		// only record the account id
		w.WriteString(args[1] + "\n")
	}
	return errors.Wrapf(w.Flush(), "failed to write file %s", accountFilePath)
}
