package storage

import (
	"database/sql"

	"github.com/go-redis/redis/v8"
)

// unwrapper is implemented by the cache and metrics decorators.
type unwrapper interface {
	Unwrap() Store
}

// base strips any decorators off s.
func base(s Store) Store {
	for {
		u, ok := s.(unwrapper)
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}

// SQLDB returns the connection pool behind s when the selected backend is
// relational, nil otherwise. Decorators are looked through, so the factory
// result can be probed directly.
func SQLDB(s Store) *sql.DB {
	type dbProvider interface {
		DB() *sql.DB
	}
	if p, ok := base(s).(dbProvider); ok {
		return p.DB()
	}
	return nil
}

// RedisClient returns the client behind s when the selected backend is
// redis, nil otherwise.
func RedisClient(s Store) *redis.Client {
	if r, ok := base(s).(*RedisStore); ok {
		return r.Client()
	}
	return nil
}
