package freight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Registry manages vehicles, drivers and clients. They are edited
// independently of trips but can never be deleted while a trip references
// them.
type Registry struct {
	Store    TxStore
	Clock    Clock
	Log      logrus.FieldLogger
	Timeout  time.Duration
	Notifier Notifier
}

func NewRegistry(store TxStore, clock Clock, log logrus.FieldLogger) *Registry {
	return &Registry{Store: store, Clock: clockOrSystem(clock), Log: loggerOrDiscard(log)}
}

// =============================================================================
// VEHICLES
// =============================================================================

func (r *Registry) SaveVehicle(ctx context.Context, v Vehicle) (Vehicle, error) {
	v.Plate = strings.ToUpper(strings.TrimSpace(v.Plate))
	if v.Status == "" {
		v.Status = VehicleActive
	}
	op := opName("vehicle", v.ID)
	if err := v.Validate(r.Clock.Now()); err != nil {
		notify(r.Notifier, op, err, "")
		return Vehicle{}, err
	}
	err := unitOfWork(ctx, r.Store, r.Timeout, op, func(ctx context.Context, s Store) error {
		now := r.Clock.Now()
		v.UpdatedAt = now
		if v.ID == 0 {
			v.CreatedAt = now
			return storageErr("insert vehicle", s.InsertVehicle(ctx, &v))
		}
		cur, err := s.GetVehicle(ctx, v.ID)
		if err != nil {
			return storageErr("load vehicle", err)
		}
		if cur == nil {
			return &NotFoundError{Entity: "vehicle", ID: v.ID}
		}
		v.CreatedAt = cur.CreatedAt
		return storageErr("update vehicle", s.UpdateVehicle(ctx, &v))
	})
	r.finish(op, err, logrus.Fields{"vehicle_id": v.ID, "plate": v.Plate}, "Vehículo guardado.")
	if err != nil {
		return Vehicle{}, err
	}
	return v, nil
}

func (r *Registry) DeleteVehicle(ctx context.Context, id int64) error {
	err := unitOfWork(ctx, r.Store, r.Timeout, "delete vehicle", func(ctx context.Context, s Store) error {
		v, err := s.GetVehicle(ctx, id)
		if err != nil {
			return storageErr("load vehicle", err)
		}
		if v == nil {
			return &NotFoundError{Entity: "vehicle", ID: id}
		}
		if err := restrictDelete(ctx, s, "vehicle", TripFilter{VehicleID: id}); err != nil {
			return err
		}
		return storageErr("delete vehicle", s.DeleteVehicle(ctx, id))
	})
	r.finish("delete vehicle", err, logrus.Fields{"vehicle_id": id}, "Vehículo eliminado.")
	return err
}

func (r *Registry) Vehicle(ctx context.Context, id int64) (Vehicle, error) {
	v, err := r.Store.GetVehicle(ctx, id)
	if err != nil {
		return Vehicle{}, storageErr("load vehicle", err)
	}
	if v == nil {
		return Vehicle{}, &NotFoundError{Entity: "vehicle", ID: id}
	}
	return *v, nil
}

func (r *Registry) Vehicles(ctx context.Context, f VehicleFilter) ([]Vehicle, error) {
	out, err := r.Store.ListVehicles(ctx, f)
	return out, storageErr("list vehicles", err)
}

// =============================================================================
// DRIVERS
// =============================================================================

// SaveDriver creates or updates a driver. The balance is never taken from
// the caller: new drivers start at zero and updates keep the stored value.
func (r *Registry) SaveDriver(ctx context.Context, d Driver) (Driver, error) {
	d.Document = strings.TrimSpace(d.Document)
	if d.Status == "" {
		d.Status = DriverActive
	}
	op := opName("driver", d.ID)
	if err := d.Validate(); err != nil {
		notify(r.Notifier, op, err, "")
		return Driver{}, err
	}
	err := unitOfWork(ctx, r.Store, r.Timeout, op, func(ctx context.Context, s Store) error {
		now := r.Clock.Now()
		d.UpdatedAt = now
		if d.ID == 0 {
			d.CreatedAt = now
			d.Balance = decimal.Zero
			return storageErr("insert driver", s.InsertDriver(ctx, &d))
		}
		cur, err := s.GetDriver(ctx, d.ID)
		if err != nil {
			return storageErr("load driver", err)
		}
		if cur == nil {
			return &NotFoundError{Entity: "driver", ID: d.ID}
		}
		d.CreatedAt = cur.CreatedAt
		d.Balance = cur.Balance
		return storageErr("update driver", s.UpdateDriver(ctx, &d))
	})
	r.finish(op, err, logrus.Fields{"driver_id": d.ID, "document": d.Document}, "Conductor guardado.")
	if err != nil {
		return Driver{}, err
	}
	return d, nil
}

// DeleteDriver removes a driver and, by cascade, the driver's movements.
func (r *Registry) DeleteDriver(ctx context.Context, id int64) error {
	err := unitOfWork(ctx, r.Store, r.Timeout, "delete driver", func(ctx context.Context, s Store) error {
		d, err := s.GetDriver(ctx, id)
		if err != nil {
			return storageErr("load driver", err)
		}
		if d == nil {
			return &NotFoundError{Entity: "driver", ID: id}
		}
		if err := restrictDelete(ctx, s, "driver", TripFilter{DriverID: id}); err != nil {
			return err
		}
		return storageErr("delete driver", s.DeleteDriver(ctx, id))
	})
	r.finish("delete driver", err, logrus.Fields{"driver_id": id}, "Conductor eliminado.")
	return err
}

func (r *Registry) Driver(ctx context.Context, id int64) (Driver, error) {
	d, err := r.Store.GetDriver(ctx, id)
	if err != nil {
		return Driver{}, storageErr("load driver", err)
	}
	if d == nil {
		return Driver{}, &NotFoundError{Entity: "driver", ID: id}
	}
	return *d, nil
}

func (r *Registry) Drivers(ctx context.Context, f DriverFilter) ([]Driver, error) {
	out, err := r.Store.ListDrivers(ctx, f)
	return out, storageErr("list drivers", err)
}

// =============================================================================
// CLIENTS
// =============================================================================

func (r *Registry) SaveClient(ctx context.Context, c Client) (Client, error) {
	if c.Status == "" {
		c.Status = ClientActive
	}
	op := opName("client", c.ID)
	if err := c.Validate(); err != nil {
		notify(r.Notifier, op, err, "")
		return Client{}, err
	}
	err := unitOfWork(ctx, r.Store, r.Timeout, op, func(ctx context.Context, s Store) error {
		now := r.Clock.Now()
		c.UpdatedAt = now
		if c.ID == 0 {
			c.CreatedAt = now
			return storageErr("insert client", s.InsertClient(ctx, &c))
		}
		cur, err := s.GetClient(ctx, c.ID)
		if err != nil {
			return storageErr("load client", err)
		}
		if cur == nil {
			return &NotFoundError{Entity: "client", ID: c.ID}
		}
		c.CreatedAt = cur.CreatedAt
		return storageErr("update client", s.UpdateClient(ctx, &c))
	})
	r.finish(op, err, logrus.Fields{"client_id": c.ID}, "Cliente guardado.")
	if err != nil {
		return Client{}, err
	}
	return c, nil
}

func (r *Registry) DeleteClient(ctx context.Context, id int64) error {
	err := unitOfWork(ctx, r.Store, r.Timeout, "delete client", func(ctx context.Context, s Store) error {
		c, err := s.GetClient(ctx, id)
		if err != nil {
			return storageErr("load client", err)
		}
		if c == nil {
			return &NotFoundError{Entity: "client", ID: id}
		}
		if err := restrictDelete(ctx, s, "client", TripFilter{ClientID: id}); err != nil {
			return err
		}
		return storageErr("delete client", s.DeleteClient(ctx, id))
	})
	r.finish("delete client", err, logrus.Fields{"client_id": id}, "Cliente eliminado.")
	return err
}

func (r *Registry) Client(ctx context.Context, id int64) (Client, error) {
	c, err := r.Store.GetClient(ctx, id)
	if err != nil {
		return Client{}, storageErr("load client", err)
	}
	if c == nil {
		return Client{}, &NotFoundError{Entity: "client", ID: id}
	}
	return *c, nil
}

func (r *Registry) Clients(ctx context.Context, f ClientFilter) ([]Client, error) {
	out, err := r.Store.ListClients(ctx, f)
	return out, storageErr("list clients", err)
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Registry) finish(op string, err error, fields logrus.Fields, success string) {
	notify(r.Notifier, op, err, success)
	if err != nil {
		r.Log.WithError(err).WithFields(fields).WithField("op", op).Warn("registry change rejected")
		return
	}
	r.Log.WithFields(fields).WithField("op", op).Info("registry change applied")
}

func restrictDelete(ctx context.Context, s Store, entity string, f TripFilter) error {
	n, err := s.CountTrips(ctx, f)
	if err != nil {
		return storageErr("count trips", err)
	}
	if n > 0 {
		return &ConflictError{Entity: entity, Reason: fmt.Sprintf("referenced by %d trip(s)", n)}
	}
	return nil
}

func opName(entity string, id int64) string {
	if id == 0 {
		return "create " + entity
	}
	return "update " + entity
}
