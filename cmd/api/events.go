package main

import (
	"zentum/internal/funding"
	"zentum/internal/ledger"
	"zentum/internal/marketdata"
	"zentum/internal/model"
)

// eventSink receives committed state for delivery outside the process.
type eventSink interface {
	AccountCommitted(acc model.Account)
	RequestChanged(req model.FundingRequest)
}

// wireEvents forwards committed accounts and funding request changes to the
// websocket bus, scoped to the owning account, and to sink when it is set.
func wireEvents(bus *marketdata.Bus, syncer *ledger.Synchronizer, fundingSvc *funding.Service, sink eventSink) {
	syncer.Subscribe(func(acc model.Account) {
		bus.Publish(marketdata.Event{Type: marketdata.EventAccount, Account: acc.ID, Data: acc})
		if sink != nil {
			sink.AccountCommitted(acc)
		}
	})
	fundingSvc.OnChange(func(req model.FundingRequest) {
		bus.Publish(marketdata.Event{Type: marketdata.EventRequest, Account: req.Header().AccountID, Data: req})
		if sink != nil {
			sink.RequestChanged(req)
		}
	})
}
