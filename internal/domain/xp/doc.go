// Package xp содержит доменную модель XP-леджера.
//
// XP накапливается монотонно: списание не поддерживается. Уровень всегда
// выводится из total_xp по кривой threshold(L) = L*L*50 и никогда не хранится
// независимо от XP.
//
//	xp := xp.NewUserXP("user-1")
//	xp.Apply(100)            // total=100, level=1
//	p := xp.Progress()       // {Current: 50, Needed: 150, Percentage: 33}
//
// Атомарность начисления обеспечивает Repository.AddXP: реализация обязана
// использовать серверный инкремент, а не read-modify-write.
package xp
