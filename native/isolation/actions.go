package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"isovault/native/margin"
)

// ConversionActionsLength is the number of ledger actions a trader needs for
// one conversion: a call that primes the trader and the sell that executes it.
const ConversionActionsLength = 2

// CallData is the payload of the priming call action.
type CallData struct {
	Amount *big.Int
	Vault  common.Address
}

// OrderData is the payload of the sell action.
type OrderData struct {
	MinOutputAmount *big.Int
}

func EncodeCallData(amount *big.Int, vault common.Address) ([]byte, error) {
	return rlp.EncodeToBytes(&CallData{Amount: amount, Vault: vault})
}

func DecodeCallData(data []byte) (CallData, error) {
	var out CallData
	if err := rlp.DecodeBytes(data, &out); err != nil {
		return CallData{}, fmt.Errorf("%w: call data: %v", ErrMalformedPayload, err)
	}
	if out.Amount == nil {
		out.Amount = big.NewInt(0)
	}
	return out, nil
}

func EncodeOrderData(minOutputAmount *big.Int) ([]byte, error) {
	if minOutputAmount == nil {
		minOutputAmount = big.NewInt(0)
	}
	return rlp.EncodeToBytes(&OrderData{MinOutputAmount: minOutputAmount})
}

// DecodeOrderData accepts empty data as a zero minimum.
func DecodeOrderData(data []byte) (OrderData, error) {
	if len(data) == 0 {
		return OrderData{MinOutputAmount: big.NewInt(0)}, nil
	}
	var out OrderData
	if err := rlp.DecodeBytes(data, &out); err != nil {
		return OrderData{}, fmt.Errorf("%w: order data: %v", ErrMalformedPayload, err)
	}
	if out.MinOutputAmount == nil {
		out.MinOutputAmount = big.NewInt(0)
	}
	return out, nil
}

// conversionActions builds the call and sell pair shared by both traders.
func conversionActions(trader common.Address, callAccountID, sellAccountID int, vault common.Address, inputMarketID, outputMarketID uint64, minOutputAmount, inputAmount *big.Int) ([]margin.ActionArgs, error) {
	if inputAmount == nil || inputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputAmount, inputAmount)
	}
	callData, err := EncodeCallData(inputAmount, vault)
	if err != nil {
		return nil, err
	}
	orderData, err := EncodeOrderData(minOutputAmount)
	if err != nil {
		return nil, err
	}
	return []margin.ActionArgs{
		{
			ActionType:   margin.ActionCall,
			AccountID:    callAccountID,
			OtherAddress: trader,
			Data:         callData,
		},
		{
			ActionType:        margin.ActionSell,
			AccountID:         sellAccountID,
			Amount:            margin.DeltaAmount(new(big.Int).Neg(inputAmount)),
			PrimaryMarketID:   inputMarketID,
			SecondaryMarketID: outputMarketID,
			OtherAddress:      trader,
			Data:              orderData,
		},
	}, nil
}
