package config

import (
	"bufio"
	"errors"
	"os"
)

var ErrEmptyEnvFile = errors.New("environment secret file is empty")

func loadEnvFile(nm string) (r string, err error) {
	fin, err := os.Open(nm)
	if err != nil {
		return ``, err
	}
	defer fin.Close()
	s := bufio.NewScanner(fin)
	s.Scan()
	if err = s.Err(); err != nil {
		return ``, err
	}
	r = s.Text()
	if r == `` {
		err = ErrEmptyEnvFile
	}
	return
}

// LoadEnvVarString loads a string value from an environment variable,
// falling back to NAME_FILE (read the first line of a file) and finally
// to def
// (config/env.go) specialized to the one type this service's config
// needs at the environment-override layer.
func LoadEnvVarString(cnd *string, envName string, def string) error {
	if v, ok := os.LookupEnv(envName); ok {
		*cnd = v
		return nil
	}
	if fp, ok := os.LookupEnv(envName + `_FILE`); ok {
		v, err := loadEnvFile(fp)
		if err != nil {
			return err
		}
		*cnd = v
		return nil
	}
	*cnd = def
	return nil
}
