package core

import (
	"context"
	"fmt"
)

// Repository maps resource types onto the tables of one adapter. Every
// method that touches the backend is queued on the adapter; the blocking
// forms wait for the queued result. Caller mistakes such as an unknown
// property or a nil resource type are reported without queuing anything.
type Repository struct {
	adapter Adapter
}

// NewRepository creates a repository over adapter
func NewRepository(adapter Adapter) *Repository {
	return &Repository{adapter: adapter}
}

// Adapter returns the adapter the repository runs on
func (repo *Repository) Adapter() Adapter {
	return repo.adapter
}

// NewResource creates an unsaved instance of rt bound to the repository
func (repo *Repository) NewResource(rt *ResourceType) *Resource {
	r := rt.New()
	r.repo = repo
	return r
}

// Save inserts a new instance or updates the dirty properties of a
// persisted one
func (repo *Repository) Save(ctx context.Context, r *Resource) error {
	_, err := repo.SaveAsync(r).Wait(ctx)
	return err
}

// SaveAsync is the non-blocking form of Save
func (repo *Repository) SaveAsync(r *Resource) *Operation[*Resource] {
	if r == nil {
		return Failed[*Resource](Errorf(CodeInvalid, "save: nil resource"))
	}
	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (*Resource, error) {
		pending, err := repo.write(ctx, conn, r)
		if err != nil {
			return nil, err
		}
		pending.apply()
		return r, nil
	})
}

// SaveAll saves every instance in one transaction. Either all are saved or
// none is, and no instance is modified on failure.
func (repo *Repository) SaveAll(ctx context.Context, rs ...*Resource) error {
	_, err := repo.SaveAllAsync(rs...).Wait(ctx)
	return err
}

// SaveAllAsync is the non-blocking form of SaveAll
func (repo *Repository) SaveAllAsync(rs ...*Resource) *Operation[[]*Resource] {
	for i, r := range rs {
		if r == nil {
			return Failed[[]*Resource](Errorf(CodeInvalid, "save all: resource %d is nil", i))
		}
	}
	if len(rs) == 0 {
		return Completed[[]*Resource](nil, nil)
	}
	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) ([]*Resource, error) {
		writes := make([]*pendingSave, 0, len(rs))
		err := conn.Transact(ctx, func(tx Conn) error {
			for _, r := range rs {
				pending, err := repo.write(ctx, tx, r)
				if err != nil {
					return err
				}
				writes = append(writes, pending)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, w := range writes {
			w.apply()
		}
		return rs, nil
	})
}

// pendingSave is a write that has reached the backend but is not yet
// reflected on the instance
type pendingSave struct {
	r     *Resource
	key   any
	saved map[string]any
}

func (p *pendingSave) apply() {
	if p.saved == nil && p.key == nil {
		return
	}
	p.r.markSaved(p.key, p.saved)
}

func (repo *Repository) write(ctx context.Context, conn Conn, r *Resource) (*pendingSave, error) {
	rt := r.rt
	values, dirty, isNew := r.snapshot()
	if isNew {
		return repo.insert(ctx, conn, rt, r, values)
	}

	query, args, err := updateStatement(rt, values, dirty)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return &pendingSave{r: r}, nil
	}
	res, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return nil, WrapError(err, CodeQuery, fmt.Sprintf("update %s", rt.name))
	}
	if res.RowsAffected == 0 {
		return nil, Errorf(CodeNotFound, "update %s: no row with key %v", rt.name, values[rt.primaryKey])
	}

	saved := make(map[string]any, len(dirty))
	for name := range dirty {
		saved[name] = values[name]
	}
	return &pendingSave{r: r, saved: saved}, nil
}

func (repo *Repository) insert(ctx context.Context, conn Conn, rt *ResourceType, r *Resource, values map[string]any) (*pendingSave, error) {
	d := conn.Dialect()
	query, args, generated, err := insertStatement(rt, d, values)
	if err != nil {
		return nil, err
	}

	pk := rt.primaryKeyProperty()
	key := values[pk.Name]
	switch {
	case generated != nil:
		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return nil, WrapError(err, CodeQuery, fmt.Sprintf("insert %s", rt.name))
		}
		key = generated
	case rt.autoIncrement() && key == nil && d.Returning(quoteIdent(pk.Column)) != "":
		rs, err := conn.Query(ctx, query, args...)
		if err != nil {
			return nil, WrapError(err, CodeQuery, fmt.Sprintf("insert %s", rt.name))
		}
		id, err := toInt64(rs.Scalar())
		if err != nil {
			return nil, NewError(CodeQuery, fmt.Sprintf("insert %s: read generated key", rt.name), err)
		}
		key = id
	default:
		res, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return nil, WrapError(err, CodeQuery, fmt.Sprintf("insert %s", rt.name))
		}
		if rt.autoIncrement() && key == nil {
			key = res.LastInsertID
		}
	}

	saved := make(map[string]any, len(values))
	for name, v := range values {
		saved[name] = v
	}
	return &pendingSave{r: r, key: key, saved: saved}, nil
}

// Find counts the matching rows and returns an unfetched group of that size
func (repo *Repository) Find(ctx context.Context, rt *ResourceType, filter *Filter, sorting *Sorting) (*ResourceGroup, error) {
	return repo.FindAsync(rt, filter, sorting).Wait(ctx)
}

// FindAsync is the non-blocking form of Find
func (repo *Repository) FindAsync(rt *ResourceType, filter *Filter, sorting *Sorting) *Operation[*ResourceGroup] {
	if rt == nil {
		return Failed[*ResourceGroup](Errorf(CodeInvalid, "find: nil resource type"))
	}
	query, args, err := countStatement(rt, filter)
	if err != nil {
		return Failed[*ResourceGroup](err)
	}
	sorting = sorting.clone()
	if _, err := sorting.Compile(rt); err != nil {
		return Failed[*ResourceGroup](err)
	}

	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (*ResourceGroup, error) {
		count, err := repo.count(ctx, conn, rt, query, args)
		if err != nil {
			return nil, err
		}
		return newResourceGroup(repo, rt, filter, sorting, count), nil
	})
}

// FindOne returns the first matching instance in primary key order, or nil
// when nothing matches
func (repo *Repository) FindOne(ctx context.Context, rt *ResourceType, filter *Filter) (*Resource, error) {
	return repo.FindOneAsync(rt, filter).Wait(ctx)
}

// FindOneAsync is the non-blocking form of FindOne
func (repo *Repository) FindOneAsync(rt *ResourceType, filter *Filter) *Operation[*Resource] {
	if rt == nil {
		return Failed[*Resource](Errorf(CodeInvalid, "find one: nil resource type"))
	}
	query, args, err := selectStatement(rt, filter, nil, 1, 0)
	if err != nil {
		return Failed[*Resource](err)
	}

	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (*Resource, error) {
		rs, err := conn.Query(ctx, query, args...)
		if err != nil {
			return nil, WrapError(err, CodeQuery, fmt.Sprintf("find one %s", rt.name))
		}
		if rs.Len() == 0 {
			return nil, nil
		}
		values, err := decodeRow(rt, rs.Rows[0])
		if err != nil {
			return nil, err
		}
		return rt.loaded(repo, values), nil
	})
}

// Count returns the number of rows matching filter
func (repo *Repository) Count(ctx context.Context, rt *ResourceType, filter *Filter) (int, error) {
	return repo.CountAsync(rt, filter).Wait(ctx)
}

// CountAsync is the non-blocking form of Count
func (repo *Repository) CountAsync(rt *ResourceType, filter *Filter) *Operation[int] {
	if rt == nil {
		return Failed[int](Errorf(CodeInvalid, "count: nil resource type"))
	}
	query, args, err := countStatement(rt, filter)
	if err != nil {
		return Failed[int](err)
	}
	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (int, error) {
		return repo.count(ctx, conn, rt, query, args)
	})
}

func (repo *Repository) count(ctx context.Context, conn Conn, rt *ResourceType, query string, args []any) (int, error) {
	rs, err := conn.Query(ctx, query, args...)
	if err != nil {
		return 0, WrapError(err, CodeQuery, fmt.Sprintf("count %s", rt.name))
	}
	n, err := toInt64(rs.Scalar())
	if err != nil {
		return 0, NewError(CodeQuery, fmt.Sprintf("count %s", rt.name), err)
	}
	return int(n), nil
}

// Delete removes a persisted instance. Deleting an instance that was never
// saved returns ErrNotFound. On success the instance is new again.
func (repo *Repository) Delete(ctx context.Context, r *Resource) error {
	_, err := repo.DeleteAsync(r).Wait(ctx)
	return err
}

// DeleteAsync is the non-blocking form of Delete
func (repo *Repository) DeleteAsync(r *Resource) *Operation[struct{}] {
	if err := checkDeletable(r); err != nil {
		return Failed[struct{}](err)
	}
	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (struct{}, error) {
		if err := repo.remove(ctx, conn, r); err != nil {
			return struct{}{}, err
		}
		r.markDeleted()
		return struct{}{}, nil
	})
}

// DeleteAll deletes every instance in one transaction
func (repo *Repository) DeleteAll(ctx context.Context, rs ...*Resource) error {
	_, err := repo.DeleteAllAsync(rs...).Wait(ctx)
	return err
}

// DeleteAllAsync is the non-blocking form of DeleteAll
func (repo *Repository) DeleteAllAsync(rs ...*Resource) *Operation[struct{}] {
	for _, r := range rs {
		if err := checkDeletable(r); err != nil {
			return Failed[struct{}](err)
		}
	}
	if len(rs) == 0 {
		return Completed(struct{}{}, nil)
	}
	return Schedule(repo.adapter, func(ctx context.Context, conn Conn) (struct{}, error) {
		err := conn.Transact(ctx, func(tx Conn) error {
			for _, r := range rs {
				if err := repo.remove(ctx, tx, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return struct{}{}, err
		}
		for _, r := range rs {
			r.markDeleted()
		}
		return struct{}{}, nil
	})
}

func checkDeletable(r *Resource) error {
	if r == nil {
		return Errorf(CodeInvalid, "delete: nil resource")
	}
	if r.IsNew() {
		return Errorf(CodeNotFound, "delete %s: instance was never saved", r.rt.name)
	}
	return nil
}

func (repo *Repository) remove(ctx context.Context, conn Conn, r *Resource) error {
	rt := r.rt
	key, _ := r.PrimaryKey()
	query, args, err := deleteStatement(rt, key)
	if err != nil {
		return err
	}
	res, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return WrapError(err, CodeQuery, fmt.Sprintf("delete %s", rt.name))
	}
	if res.RowsAffected == 0 {
		return Errorf(CodeNotFound, "delete %s: no row with key %v", rt.name, key)
	}
	return nil
}
