package freight

import (
	"context"
)

// withExpenses materializes each trip's owned expenses by indexed lookup.
func withExpenses(ctx context.Context, s Store, trips []Trip) ([]TripDetail, error) {
	details := make([]TripDetail, len(trips))
	if len(trips) == 0 {
		return details, nil
	}
	ids := make([]int64, len(trips))
	for i, t := range trips {
		ids[i] = t.ID
	}
	expenses, err := s.ListExpenses(ctx, ExpenseFilter{TripIDs: ids})
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	byTrip := make(map[int64][]Expense, len(trips))
	for _, e := range expenses {
		byTrip[e.TripID] = append(byTrip[e.TripID], e)
	}
	for i, t := range trips {
		details[i] = TripDetail{Trip: t, Expenses: byTrip[t.ID]}
	}
	return details, nil
}

// withReferences fills Vehicle, Driver and Client on each detail, loading
// every referenced id once.
func withReferences(ctx context.Context, s Store, details []TripDetail) error {
	vehicles := map[int64]*Vehicle{}
	drivers := map[int64]*Driver{}
	clients := map[int64]*Client{}
	for i := range details {
		d := &details[i]

		v, ok := vehicles[d.VehicleID]
		if !ok {
			var err error
			if v, err = s.GetVehicle(ctx, d.VehicleID); err != nil {
				return storageErr("load vehicle", err)
			}
			vehicles[d.VehicleID] = v
		}
		d.Vehicle = v

		dr, ok := drivers[d.DriverID]
		if !ok {
			var err error
			if dr, err = s.GetDriver(ctx, d.DriverID); err != nil {
				return storageErr("load driver", err)
			}
			drivers[d.DriverID] = dr
		}
		d.Driver = dr

		c, ok := clients[d.ClientID]
		if !ok {
			var err error
			if c, err = s.GetClient(ctx, d.ClientID); err != nil {
				return storageErr("load client", err)
			}
			clients[d.ClientID] = c
		}
		d.Client = c
	}
	return nil
}

func loadDetail(ctx context.Context, s Store, id int64, refs bool) (TripDetail, error) {
	t, err := s.GetTrip(ctx, id)
	if err != nil {
		return TripDetail{}, storageErr("load trip", err)
	}
	if t == nil {
		return TripDetail{}, &NotFoundError{Entity: "trip", ID: id}
	}
	details, err := withExpenses(ctx, s, []Trip{*t})
	if err != nil {
		return TripDetail{}, err
	}
	if refs {
		if err := withReferences(ctx, s, details); err != nil {
			return TripDetail{}, err
		}
	}
	return details[0], nil
}
