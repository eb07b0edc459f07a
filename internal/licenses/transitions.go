package licenses

import (
	"fmt"

	"github.com/angelmondragon/licensor-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensor-backend/pkg/errors"
)

// Transition returns the status a license moves to when event is applied in
// status from. Disallowed moves come back as typed errors: LICENSE_REVOKED
// and LICENSE_EXPIRED for the terminal-ish states, STATE_CONFLICT otherwise.
//
// revoked is absorbing: every event either fails or leaves it revoked.
func Transition(from enums.LicenseStatus, event enums.LicenseEvent) (enums.LicenseStatus, error) {
	switch from {
	case enums.LicenseStatusPending:
		switch event {
		case enums.LicenseEventActivate:
			return enums.LicenseStatusActive, nil
		case enums.LicenseEventVerify:
			return from, stateConflict(from, event)
		case enums.LicenseEventExpire:
			return enums.LicenseStatusExpired, nil
		case enums.LicenseEventDeactivate, enums.LicenseEventUnbind, enums.LicenseEventExtend:
			return enums.LicenseStatusPending, nil
		case enums.LicenseEventRevoke:
			return enums.LicenseStatusRevoked, nil
		}
	case enums.LicenseStatusActive:
		switch event {
		case enums.LicenseEventActivate, enums.LicenseEventVerify, enums.LicenseEventUnbind, enums.LicenseEventExtend:
			return enums.LicenseStatusActive, nil
		case enums.LicenseEventExpire:
			return enums.LicenseStatusExpired, nil
		case enums.LicenseEventDeactivate:
			return enums.LicenseStatusPending, nil
		case enums.LicenseEventRevoke:
			return enums.LicenseStatusRevoked, nil
		}
	case enums.LicenseStatusExpired:
		switch event {
		case enums.LicenseEventActivate, enums.LicenseEventVerify:
			return from, errExpired(nil)
		case enums.LicenseEventExpire, enums.LicenseEventDeactivate, enums.LicenseEventUnbind:
			return enums.LicenseStatusExpired, nil
		case enums.LicenseEventExtend:
			return enums.LicenseStatusActive, nil
		case enums.LicenseEventRevoke:
			return enums.LicenseStatusRevoked, nil
		}
	case enums.LicenseStatusRevoked:
		switch event {
		case enums.LicenseEventActivate, enums.LicenseEventVerify, enums.LicenseEventDeactivate:
			return from, errRevoked()
		case enums.LicenseEventExpire, enums.LicenseEventUnbind, enums.LicenseEventRevoke, enums.LicenseEventExtend:
			return enums.LicenseStatusRevoked, nil
		}
	}
	return from, stateConflict(from, event)
}

func stateConflict(from enums.LicenseStatus, event enums.LicenseEvent) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s a %s license", event, from)).
		WithDetails(map[string]any{"status": from, "event": event})
}
