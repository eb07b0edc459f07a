package licenses

import (
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
)

// ErrStaleLicense is returned by Store.Update when the row's version moved
// since it was read. The engine retries the whole transaction on it.
var ErrStaleLicense = errors.New("license row changed since it was read")

// ErrDuplicateKey is returned by Store.Insert when the license key is taken.
var ErrDuplicateKey = errors.New("license key already exists")

func errNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "license not found")
}

func errRevoked() error {
	return pkgerrors.New(pkgerrors.CodeLicenseRevoked, "license has been revoked")
}

func errExpired(expireDate *time.Time) error {
	err := pkgerrors.New(pkgerrors.CodeLicenseExpired, "license has expired")
	if expireDate != nil {
		err = err.WithDetails(map[string]any{"expire_date": expireDate.UTC()})
	}
	return err
}

func errDeviceConflict() error {
	return pkgerrors.New(pkgerrors.CodeDeviceConflict, "license is bound to another device; deactivate it there first")
}

func errMachineMismatch() error {
	return pkgerrors.New(pkgerrors.CodeMachineMismatch, "machine does not match license binding")
}

func errInvalid(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}

func errStorage(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

// outcomeOf maps an operation result onto the metrics outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
