package logger

import (
	"time"

	"go.uber.org/zap"
)

func NodeID(v int) zap.Field {
	return zap.Int("node_id", v)
}

func NodeIDs(v []int) zap.Field {
	return zap.Ints("node_ids", v)
}

func Endpoint(v string) zap.Field {
	return zap.String("endpoint", v)
}

func Phase(v string) zap.Field {
	return zap.String("phase", v)
}

func State(v string) zap.Field {
	return zap.String("state", v)
}

func Matrix(v string) zap.Field {
	return zap.String("matrix", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

func Archive(v string) zap.Field {
	return zap.String("archive", v)
}

func RunID(v string) zap.Field {
	return zap.String("run_id", v)
}

// Err is zap.Error under a shorter name so call sites read uniformly.
func Err(err error) zap.Field {
	return zap.Error(err)
}
