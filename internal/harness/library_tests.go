package harness

import (
	"time"

	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
)

// scanTimeLimit is how long loading a module and listing its plugins may
// take before scan-time warns.
const scanTimeLimit = 100 * time.Millisecond

const nonexistentFactoryID = "foo-factory-that-does-not-exist"

func testScanTime(env *Env) result.Outcome {
	start := time.Now()
	factory, err := env.factory()
	if err != nil {
		return outcomeFor(err)
	}
	for idx := uint32(0); idx < factory.Count(); idx++ {
		_ = factory.Descriptor(idx)
	}
	elapsed := time.Since(start)
	if elapsed > scanTimeLimit {
		return result.Warn("The plugin took %d milliseconds to scan, which is longer than the %d millisecond limit.",
			elapsed.Milliseconds(), scanTimeLimit.Milliseconds())
	}
	return result.Pass()
}

func testQueryNonexistentFactory(env *Env) result.Outcome {
	lib, err := env.library()
	if err != nil {
		return outcomeFor(err)
	}
	if f := lib.Factory(nonexistentFactoryID); f != nil {
		return result.Fail("Querying a factory with the non-existent factory ID '%s' returned a non-null pointer.",
			nonexistentFactoryID)
	}
	return result.Pass()
}

func testCreateIDWithTrailingGarbage(env *Env) result.Outcome {
	factory, err := env.factory()
	if err != nil {
		return outcomeFor(err)
	}
	if factory.Count() == 0 {
		return result.Skip("The plugin library does not expose any plugins.")
	}
	for idx := uint32(0); idx < factory.Count(); idx++ {
		d := factory.Descriptor(idx)
		if d == nil {
			continue
		}
		garbled := d.ID + " foo"
		env.step("create " + garbled)
		inst, err := host.Create(factory, garbled, env.hostOptions()...)
		if err != nil {
			return outcomeFor(err)
		}
		if inst != nil {
			inst.Close()
			return result.Fail("Creating a plugin instance with the non-existent plugin ID '%s' should return a "+
				"null pointer, but it did not.", garbled)
		}
	}
	return result.Pass()
}
